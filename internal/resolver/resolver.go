// Package resolver maps candidate names from scraped listings onto catalog
// rows. Every catalog mutation of artists, venues and promoters goes through
// the four-tier resolution here (external id, exact normalized name, bigram
// fuzzy match, insert); nothing else inserts into those tables.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/client"
	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
	"github.com/nightgrid/event-pipeline/internal/util"
)

// ArtistDirectory enriches newly inserted artists; nil disables enrichment.
type ArtistDirectory interface {
	BestMatch(ctx context.Context, name string) (*client.ArtistProfile, error)
}

// Geocoder completes venue addresses; nil disables geocoding.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*client.GeocodeResult, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type Resolver struct {
	store    store.Store
	search   ArtistDirectory
	geocoder Geocoder
	cfg      *config.Config
	log      *zap.SugaredLogger
}

func New(s store.Store, search ArtistDirectory, geocoder Geocoder, cfg *config.Config) *Resolver {
	return &Resolver{
		store:    s,
		search:   search,
		geocoder: geocoder,
		cfg:      cfg,
		log:      zap.S().Named("resolver"),
	}
}

// ArtistCandidate is what a listing knows about an artist before resolution.
type ArtistCandidate struct {
	Name        string
	ExternalID  string
	ExternalURL string
	ImageURL    string
}

// PromoterCandidate mirrors the scraped host block.
type PromoterCandidate struct {
	Name        string
	ExternalID  string
	ExternalURL string
	ImageURL    string
}

// ResolveArtist returns the catalog row for the candidate, inserting one when
// no tier matches. Repeated calls with the same candidate return the same
// row.
func (r *Resolver) ResolveArtist(ctx context.Context, candidate ArtistCandidate) (*model.Artist, error) {
	normalized := util.NormalizeName(candidate.Name)
	if normalized == "" {
		return nil, fmt.Errorf("artist candidate has no usable name")
	}

	if candidate.ExternalID != "" {
		artist, err := r.store.Artist().GetByExternalID(ctx, candidate.ExternalID)
		if err == nil {
			return r.backfillArtist(ctx, artist, candidate), nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, err
		}
	}

	artist, err := r.store.Artist().GetByNormalizedName(ctx, normalized)
	if err == nil {
		return artist, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	names, err := r.store.Artist().Names(ctx)
	if err != nil {
		return nil, err
	}
	if id, score, ok := closestName(names, normalized, r.cfg.Pipeline.ArtistFuzzyThreshold); ok {
		r.log.Debugf("artist %q fuzzy-matched existing row %s (score %.2f)", candidate.Name, id, score)
		return r.store.Artist().Get(ctx, id)
	}

	newArtist := model.Artist{
		Name:           strings.TrimSpace(candidate.Name),
		NormalizedName: normalized,
		ExternalURL:    candidate.ExternalURL,
		ImageURL:       candidate.ImageURL,
	}
	if candidate.ExternalID != "" {
		newArtist.ExternalID = &candidate.ExternalID
	}
	r.enrichArtist(ctx, &newArtist)
	return r.store.Artist().Create(ctx, newArtist)
}

// enrichArtist fills gaps on a row about to be inserted from the external
// artist search. Failures only cost the enrichment, never the insert.
func (r *Resolver) enrichArtist(ctx context.Context, artist *model.Artist) {
	if r.search == nil {
		return
	}
	profile, err := r.search.BestMatch(ctx, artist.Name)
	if err != nil {
		r.log.Warnf("artist enrichment for %q failed: %v", artist.Name, err)
		return
	}
	if profile == nil {
		return
	}
	if artist.ExternalID == nil && profile.ExternalID != "" {
		artist.ExternalID = &profile.ExternalID
	}
	if artist.ExternalURL == "" {
		artist.ExternalURL = profile.ProfileURL
	}
	if artist.ImageURL == "" {
		artist.ImageURL = profile.AvatarURL
	}
	if artist.Followers == 0 && profile.Followers > 0 {
		artist.Followers = int(profile.Followers)
	}
	if artist.City == "" {
		artist.City = profile.City
	}
	if artist.Country == "" {
		artist.Country = profile.Country
	}
}

func (r *Resolver) backfillArtist(ctx context.Context, artist *model.Artist, candidate ArtistCandidate) *model.Artist {
	changed := false
	if artist.ExternalURL == "" && candidate.ExternalURL != "" {
		artist.ExternalURL = candidate.ExternalURL
		changed = true
	}
	if artist.ImageURL == "" && candidate.ImageURL != "" {
		artist.ImageURL = candidate.ImageURL
		changed = true
	}
	if !changed {
		return artist
	}
	updated, err := r.store.Artist().Update(ctx, *artist)
	if err != nil {
		r.log.Warnf("backfilling artist %s failed: %v", artist.ID, err)
		return artist
	}
	return updated
}

// ResolvePromoter resolves a scraped host. A promoter whose normalized name
// equals an existing venue's gets linked to that venue: the same operator
// runs both.
func (r *Resolver) ResolvePromoter(ctx context.Context, candidate PromoterCandidate) (*model.Promoter, error) {
	normalized := util.NormalizeName(candidate.Name)
	if normalized == "" {
		return nil, fmt.Errorf("promoter candidate has no usable name")
	}

	if candidate.ExternalID != "" {
		promoter, err := r.store.Promoter().GetByExternalID(ctx, candidate.ExternalID)
		if err == nil {
			return r.backfillPromoter(ctx, promoter, candidate), nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, err
		}
	}

	promoter, err := r.store.Promoter().GetByNormalizedName(ctx, normalized)
	if err == nil {
		if promoter.LinkedVenueID == nil {
			promoter = r.linkVenue(ctx, promoter, normalized)
		}
		return promoter, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	names, err := r.store.Promoter().Names(ctx)
	if err != nil {
		return nil, err
	}
	if id, score, ok := closestName(names, normalized, r.cfg.Pipeline.PromoterFuzzyThreshold); ok {
		r.log.Debugf("promoter %q fuzzy-matched existing row %s (score %.2f)", candidate.Name, id, score)
		return r.store.Promoter().Get(ctx, id)
	}

	newPromoter := model.Promoter{
		Name:           strings.TrimSpace(candidate.Name),
		NormalizedName: normalized,
		ExternalURL:    candidate.ExternalURL,
		ImageURL:       candidate.ImageURL,
	}
	if candidate.ExternalID != "" {
		newPromoter.ExternalID = &candidate.ExternalID
	}
	created, err := r.store.Promoter().Create(ctx, newPromoter)
	if err != nil {
		return nil, err
	}
	return r.linkVenue(ctx, created, normalized), nil
}

func (r *Resolver) backfillPromoter(ctx context.Context, promoter *model.Promoter, candidate PromoterCandidate) *model.Promoter {
	changed := false
	if promoter.ExternalURL == "" && candidate.ExternalURL != "" {
		promoter.ExternalURL = candidate.ExternalURL
		changed = true
	}
	if promoter.ImageURL == "" && candidate.ImageURL != "" {
		promoter.ImageURL = candidate.ImageURL
		changed = true
	}
	if !changed {
		return promoter
	}
	updated, err := r.store.Promoter().Update(ctx, *promoter)
	if err != nil {
		r.log.Warnf("backfilling promoter %s failed: %v", promoter.ID, err)
		return promoter
	}
	return updated
}

// linkVenue is best effort: a missing venue or a failed update leaves the
// promoter unlinked, to be retried on the next resolution.
func (r *Resolver) linkVenue(ctx context.Context, promoter *model.Promoter, normalized string) *model.Promoter {
	venue, err := r.store.Venue().GetByNormalizedName(ctx, normalized)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			r.log.Warnf("venue lookup for promoter link %q failed: %v", normalized, err)
		}
		return promoter
	}
	if err := r.store.Promoter().LinkVenue(ctx, promoter.ID, venue.ID); err != nil {
		r.log.Warnf("linking promoter %s to venue %s failed: %v", promoter.ID, venue.ID, err)
		return promoter
	}
	promoter.LinkedVenueID = &venue.ID
	return promoter
}

// closestName scans existing catalog names for the best bigram match at or
// above threshold. Ties keep the earlier row so repeated runs stay stable.
func closestName(names []model.EntityName, normalized string, threshold float64) (uuid.UUID, float64, bool) {
	var bestID uuid.UUID
	bestScore := 0.0
	for _, entry := range names {
		if score := util.BigramSimilarity(normalized, entry.Name); score > bestScore {
			bestID, bestScore = entry.ID, score
		}
	}
	if bestScore < threshold {
		return uuid.Nil, bestScore, false
	}
	return bestID, bestScore, true
}
