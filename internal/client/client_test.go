package client

import (
	"testing"

	"github.com/nightgrid/event-pipeline/internal/config"
)

// newTestConfig points every collaborator at url; individual tests override
// the endpoints they care about.
func newTestConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Clients.ScraperURL = url
	cfg.Clients.ArtistSearchURL = url
	cfg.Clients.ArtistSearchTokenURL = url + "/token"
	cfg.Clients.ArtistSearchClientID = "test-client"
	cfg.Clients.ArtistSearchClientSecret = "test-secret"
	cfg.Clients.GeocoderURL = url
	cfg.Clients.GeocoderAPIKey = "test-key"
	cfg.Clients.TimetableDirectoryURL = url
	cfg.Clients.ExtractorURL = url
	cfg.Clients.ExtractorAPIKey = "test-key"
	return cfg
}
