package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smokyabdulrahman/prayer-clock/internal/geo"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
)

var (
	flagLocateClear  bool
	flagNominatimURL string
	flagIPLocatorURL string
)

func newLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate [latitude longitude]",
		Short: "Set or detect your location",
		Long: "Save a location for later runs. With coordinates, the city, country and timezone\n" +
			"are looked up for them; without, the location is detected from your IP address.\n" +
			"Use --clear to forget the saved location.",
		Args: cobra.RangeArgs(0, 2),
		RunE: runLocate,
	}
	cmd.Flags().BoolVar(&flagLocateClear, "clear", false, "Forget the saved location")
	cmd.Flags().StringVar(&flagNominatimURL, "nominatim-url", "", "Reverse geocoding base URL")
	cmd.Flags().StringVar(&flagIPLocatorURL, "ip-url", "", "IP geolocation URL")
	_ = cmd.Flags().MarkHidden("nominatim-url")
	_ = cmd.Flags().MarkHidden("ip-url")
	return cmd
}

func runLocate(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return fmt.Errorf("both latitude and longitude are required")
	}

	ctx := cmd.Context()
	a := newApp(ctx)
	defer a.Close()

	if a.store == nil {
		return fmt.Errorf("no store available to save the location (check the store setting)")
	}

	w := cmd.OutOrStdout()
	if flagLocateClear {
		if err := a.store.ClearLocation(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "Saved location cleared.")
		return nil
	}

	var loc geo.Location
	if len(args) == 2 {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil || lat < -90 || lat > 90 {
			return fmt.Errorf("invalid latitude %q: must be between -90 and 90", args[0])
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil || lon < -180 || lon > 180 {
			return fmt.Errorf("invalid longitude %q: must be between -180 and 180", args[1])
		}
		loc = geo.Location{Latitude: lat, Longitude: lon}
		if err := a.describe(ctx, &loc); err != nil {
			return err
		}
	} else {
		ip := geo.NewIPLocator(true)
		if flagIPLocatorURL != "" {
			ip.URL = flagIPLocatorURL
		}
		detected, err := ip.Locate(ctx)
		if err != nil {
			return fmt.Errorf("location detection failed: %w", err)
		}
		loc = *detected
	}

	// The saved location only takes effect when no coordinates or city are configured.
	a.cfg.Latitude, a.cfg.Longitude, a.cfg.City, a.cfg.Country = 0, 0, "", ""
	svc, err := a.service(ctx, service.Options{})
	if err != nil {
		return err
	}
	if err := svc.SetLocation(ctx, loc); err != nil {
		a.log.Warn().Err(err).Msg("location saved but prayer times could not be fetched")
	}

	fmt.Fprintf(w, "Location set to %s (%.4f, %.4f, %s)\n", loc.Label(), loc.Latitude, loc.Longitude, loc.LoadLocation())
	return nil
}

// describe fills in the city, country and timezone for loc's coordinates.
// Reverse geocoding and the timezone lookup run concurrently; a geocoding
// failure leaves the names empty, a timezone failure is an error.
func (a *app) describe(ctx context.Context, loc *geo.Location) error {
	geocoder := geo.NewGeocoder(a.cfg.Language)
	if flagNominatimURL != "" {
		geocoder.BaseURL = flagNominatimURL
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		city, country, err := geocoder.Reverse(gctx, loc.Latitude, loc.Longitude)
		if err != nil {
			a.log.Warn().Err(err).Msg("reverse geocoding failed")
			return nil
		}
		loc.City, loc.Country = city, country
		return nil
	})
	g.Go(func() error {
		tz, err := a.client.Timezone(gctx, loc.Latitude, loc.Longitude)
		if err != nil {
			return fmt.Errorf("failed to look up timezone: %w", err)
		}
		loc.Timezone = tz
		return nil
	})
	return g.Wait()
}
