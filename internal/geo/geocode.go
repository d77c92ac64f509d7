package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"
)

// DefaultNominatimURL is the public OpenStreetMap reverse-geocoding endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// userAgent identifies us to Nominatim, whose usage policy requires one.
const userAgent = "prayer-clock (+https://github.com/smokyabdulrahman/prayer-clock)"

type nominatimResponse struct {
	Error   string `json:"error"`
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Geocoder turns coordinates into a city and country name.
// Requests are limited to one per second, per Nominatim's usage policy.
type Geocoder struct {
	BaseURL    string
	Language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGeocoder creates a Geocoder that asks for names in lang ("ar", "en", ...).
func NewGeocoder(lang string) *Geocoder {
	return &Geocoder{
		BaseURL:    DefaultNominatimURL,
		Language:   lang,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Reverse looks up the place at lat/lon. The city falls back to the town,
// village, then state when the finer names are absent.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (city, country string, err error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", "", classify("reverse geocode", err)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	if g.Language != "" {
		params.Set("accept-language", g.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", "", classify("reverse geocode request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: geocoding API returned status %d", ErrPositionUnavailable, resp.StatusCode)
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if result.Error != "" {
		return "", "", fmt.Errorf("%w: %s", ErrPositionUnavailable, result.Error)
	}

	a := result.Address
	for _, c := range []string{a.City, a.Town, a.Village, a.State} {
		if c != "" {
			city = c
			break
		}
	}
	return city, a.Country, nil
}
