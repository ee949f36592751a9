package service

import (
	"github.com/nightgrid/event-pipeline/internal/client"
	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/detector"
	"github.com/nightgrid/event-pipeline/internal/genres"
	"github.com/nightgrid/event-pipeline/internal/resolver"
	"github.com/nightgrid/event-pipeline/internal/store"
)

// NewDefaultPipeline wires the enrichment pipeline from configuration:
// external clients, entity resolver, festival detector and genre aggregator.
// Collaborators without configuration stay nil, disabling the steps that
// need them; only the scraper is assumed present.
func NewDefaultPipeline(s store.Store, cfg *config.Config) *Pipeline {
	collab := Collaborators{Scraper: client.NewScraper(cfg)}

	var search resolver.ArtistDirectory
	if cfg.Clients.ArtistSearchURL != "" {
		artistSearch := client.NewArtistSearch(cfg)
		search = artistSearch
		collab.Tags = artistSearch
	}

	var geocoder resolver.Geocoder
	if cfg.Clients.GeocoderURL != "" {
		geocoder = client.NewGeocoder(cfg)
	}

	if cfg.Clients.TimetableDirectoryURL != "" {
		collab.Directory = client.NewTimetableDirectory(cfg)
	}
	if cfg.Clients.ExtractorAPIKey != "" {
		collab.Extractor = client.NewLineupExtractor(cfg)
	}

	res := resolver.New(s, search, geocoder, cfg)
	det := detector.New(cfg.Pipeline.FestivalConfidenceThreshold)
	agg := genres.New(s, cfg)

	return NewPipeline(s, res, det, agg, collab, cfg)
}
