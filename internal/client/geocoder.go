package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

type GeocodeResult struct {
	Latitude         float64           `json:"lat"`
	Longitude        float64           `json:"lng"`
	FormattedAddress string            `json:"formattedAddress"`
	Components       GeocodeComponents `json:"components"`
}

type GeocodeComponents struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Geocoder resolves venue addresses to coordinates and back.
type Geocoder struct {
	client *resty.Client
}

func NewGeocoder(cfg *config.Config) *Geocoder {
	client := resty.New().
		SetBaseURL(cfg.Clients.GeocoderURL).
		SetTimeout(cfg.Clients.HTTPTimeout)
	if cfg.Clients.GeocoderAPIKey != "" {
		client.SetQueryParam("key", cfg.Clients.GeocoderAPIKey)
	}
	return &Geocoder{client: client}
}

// Geocode returns coordinates for an address, or nil when the geocoder knows
// nothing about it.
func (g *Geocoder) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	var out GeocodeResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("address", address).
		SetResult(&out).
		Get("/geocode")
	metrics.IncreaseExternalCallsMetric("geocoder", callResult(resp, err))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("geocode %q: %w", address, err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, retry.FromStatus(resp.StatusCode(), fmt.Errorf("geocode %q: status %d", address, resp.StatusCode()))
	}
	return &out, nil
}

// ReverseGeocode returns the formatted address nearest to the coordinates,
// or "" when the geocoder has none.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	var out GeocodeResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("lat", strconv.FormatFloat(lat, 'f', -1, 64)).
		SetQueryParam("lng", strconv.FormatFloat(lng, 'f', -1, 64)).
		SetResult(&out).
		Get("/reverse")
	metrics.IncreaseExternalCallsMetric("geocoder", callResult(resp, err))
	if err != nil {
		return "", retry.Transient(fmt.Errorf("reverse geocode %f,%f: %w", lat, lng, err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if resp.IsError() {
		return "", retry.FromStatus(resp.StatusCode(), fmt.Errorf("reverse geocode %f,%f: status %d", lat, lng, resp.StatusCode()))
	}
	return out.FormattedAddress, nil
}
