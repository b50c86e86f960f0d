package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"argusgo/pkg/config"
	"argusgo/pkg/request"
	"argusgo/pkg/tracker"
)

// NominatimClient resolves place names through a Nominatim-style
// endpoint. All requests go through the shared HTTP client, which
// serializes and rate-limits the nominatim provider; responses cache
// for the configured TTL so repeated place names cost nothing. A
// circuit breaker keeps a dead endpoint from stalling enrichment.
type NominatimClient struct {
	rc        *request.Client
	searchURL string
	email     string
	ttl       time.Duration
	breaker   *gobreaker.CircuitBreaker
}

// NewNominatim builds a client for the configured endpoint and
// registers its request rate with the shared HTTP client.
func NewNominatim(rc *request.Client, cfg config.NominatimConfig, cacheTTL time.Duration, trk *tracker.Tracker) *NominatimClient {
	if cfg.QPS > 0 {
		rc.SetProviderQPS("nominatim", cfg.QPS)
	}

	settings := gobreaker.Settings{
		Name:        "nominatim",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Geocoder breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			trk.SetBreakerOpen("geocode.nominatim", to == gobreaker.StateOpen)
		},
	}

	return &NominatimClient{
		rc:        rc,
		searchURL: cfg.URL,
		email:     cfg.Email,
		ttl:       cacheTTL,
		breaker:   gobreaker.NewCircuitBreaker(settings),
	}
}

// nominatimResult is the subset of the jsonv2 response we consume.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		State       string `json:"state"`
		County      string `json:"county"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Geocode resolves a place name to coordinates. countryHint (ISO
// alpha-2) narrows the search when set. Returns ErrNotFound when the
// endpoint has no match.
func (n *NominatimClient) Geocode(ctx context.Context, place, countryHint string) (*Location, error) {
	q := url.Values{}
	q.Set("q", place)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")
	if countryHint != "" {
		q.Set("countrycodes", strings.ToLower(countryHint))
	}
	if n.email != "" {
		q.Set("email", n.email)
	}
	fullURL := n.searchURL + "?" + q.Encode()

	// Cache key ignores the email parameter.
	cacheKey := fmt.Sprintf("nominatim:search:%s:%s", strings.ToLower(place), strings.ToLower(countryHint))

	headers := map[string]string{"Accept": "application/json"}
	if n.email != "" {
		// Usage policy asks for a contact in the User-Agent.
		headers["User-Agent"] = fmt.Sprintf("argusgo (%s)", n.email)
	}

	body, err := n.breaker.Execute(func() (interface{}, error) {
		return n.rc.GetCached(ctx, fullURL, headers, cacheKey, n.ttl)
	})
	if err != nil {
		return nil, fmt.Errorf("nominatim search %q: %w", place, err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body.([]byte), &results); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim lon %q: %w", r.Lon, err)
	}

	region := r.Address.State
	if region == "" {
		region = r.Address.County
	}

	return &Location{
		Name:        place,
		Lat:         lat,
		Lon:         lon,
		CountryCode: strings.ToUpper(r.Address.CountryCode),
		CountryName: r.Address.Country,
		Region:      region,
		Source:      "nominatim",
	}, nil
}
