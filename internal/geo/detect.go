// Package geo resolves where the user is: IP-based detection, reverse
// geocoding of coordinates, and the fallback default location.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Classified location failures.
var (
	// ErrPermissionDenied means automatic detection is disabled by the user.
	ErrPermissionDenied = errors.New("location detection not permitted")
	// ErrPositionUnavailable means the provider could not produce a position.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrTimeout means the provider did not answer in time.
	ErrTimeout = errors.New("location request timed out")
)

// DefaultTimeout bounds a single detection attempt.
const DefaultTimeout = 10 * time.Second

// Location holds geographic coordinates and the names that go with them.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Timezone  string  `json:"timezone"`
}

// DefaultLocation is used when nothing else is known: Makkah.
var DefaultLocation = Location{
	Latitude:  21.4225,
	Longitude: 39.8262,
	City:      "Makkah",
	Country:   "Saudi Arabia",
	Timezone:  "Asia/Riyadh",
}

// LoadLocation returns the *time.Location for l's timezone, or time.Local
// when the timezone is empty or unknown.
func (l Location) LoadLocation() *time.Location {
	if l.Timezone == "" {
		return time.Local
	}
	tz, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.Local
	}
	return tz
}

// Label returns "City, Country" with whichever parts are known, or the
// coordinates when neither is.
func (l Location) Label() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.City != "":
		return l.City
	case l.Country != "":
		return l.Country
	default:
		return fmt.Sprintf("%.4f, %.4f", l.Latitude, l.Longitude)
	}
}

// Locator produces the user's current location or a classified failure.
type Locator interface {
	Locate(ctx context.Context) (*Location, error)
}

// ipAPIResponse maps the response from ip-api.com.
type ipAPIResponse struct {
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	City     string  `json:"city"`
	Country  string  `json:"country"`
	Timezone string  `json:"timezone"`
}

// DefaultIPAPIURL is the ip-api.com endpoint. It needs no API key.
const DefaultIPAPIURL = "http://ip-api.com/json/?fields=status,message,lat,lon,city,country,timezone"

// IPLocator determines location from the public IP address.
type IPLocator struct {
	URL        string
	Enabled    bool
	httpClient *http.Client
}

// NewIPLocator creates an IPLocator. When enabled is false every call
// fails with ErrPermissionDenied.
func NewIPLocator(enabled bool) *IPLocator {
	return &IPLocator{
		URL:        DefaultIPAPIURL,
		Enabled:    enabled,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Locate queries ip-api.com for the caller's location.
func (l *IPLocator) Locate(ctx context.Context) (*Location, error) {
	if !l.Enabled {
		return nil, ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, classify("geolocation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geolocation API returned status %d", ErrPositionUnavailable, resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode geolocation response: %v", ErrPositionUnavailable, err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("%w: geolocation failed: %s", ErrPositionUnavailable, result.Message)
	}

	return &Location{
		Latitude:  result.Lat,
		Longitude: result.Lon,
		City:      result.City,
		Country:   result.Country,
		Timezone:  result.Timezone,
	}, nil
}

// classify maps a transport error onto ErrTimeout or ErrPositionUnavailable.
func classify(msg string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, msg, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrPositionUnavailable, msg, err)
}
