package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
	"github.com/nightgrid/event-pipeline/internal/util"
)

// VenueCandidate is the scraped location block. Festival widens the fuzzy
// distance gate: festival grounds are large, club addresses are not.
type VenueCandidate struct {
	Name       string
	ExternalID string
	Address    string
	City       string
	Country    string
	Latitude   *float64
	Longitude  *float64
	Festival   bool
}

func (c VenueCandidate) hasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

func (c VenueCandidate) fullAddress() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{c.Address, c.City, c.Country} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	return strings.Join(parts, ", ")
}

// ResolveVenue resolves the location block of a listing. Before the fuzzy
// tier the candidate's address is completed via the geocoder, and a fuzzy hit
// is accepted only when it is geographically plausible: a name-alike venue
// across town is a different venue.
func (r *Resolver) ResolveVenue(ctx context.Context, candidate VenueCandidate) (*model.Venue, error) {
	normalized := util.NormalizeName(candidate.Name)
	if normalized == "" {
		return nil, fmt.Errorf("venue candidate has no usable name")
	}

	if candidate.ExternalID != "" {
		venue, err := r.store.Venue().GetByExternalID(ctx, candidate.ExternalID)
		if err == nil {
			return r.backfillVenue(ctx, venue, candidate), nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, err
		}
	}

	r.completeCoordinates(ctx, &candidate)

	venue, err := r.store.Venue().GetByNormalizedName(ctx, normalized)
	if err == nil {
		return r.backfillVenue(ctx, venue, candidate), nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	names, err := r.store.Venue().Names(ctx)
	if err != nil {
		return nil, err
	}
	if id, score, ok := closestName(names, normalized, r.cfg.Pipeline.VenueFuzzyThreshold); ok {
		existing, err := r.store.Venue().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		distance, plausible := r.distanceGate(existing, candidate)
		if plausible {
			r.log.Debugf("venue %q fuzzy-matched existing row %s (score %.2f)", candidate.Name, id, score)
			return r.backfillVenue(ctx, existing, candidate), nil
		}
		r.log.Infof("venue %q fuzzy match %q rejected: %.1fkm apart", candidate.Name, existing.Name, distance)
	}

	newVenue := model.Venue{
		Name:           strings.TrimSpace(candidate.Name),
		NormalizedName: normalized,
		Address:        candidate.Address,
		City:           candidate.City,
		Country:        candidate.Country,
		Latitude:       candidate.Latitude,
		Longitude:      candidate.Longitude,
	}
	if candidate.ExternalID != "" {
		newVenue.ExternalID = &candidate.ExternalID
	}
	if newVenue.Address == "" && candidate.hasCoordinates() && r.geocoder != nil {
		address, err := r.geocoder.ReverseGeocode(ctx, *candidate.Latitude, *candidate.Longitude)
		if err != nil {
			r.log.Warnf("reverse geocoding venue %q failed: %v", candidate.Name, err)
		} else {
			newVenue.Address = address
		}
	}
	return r.store.Venue().Create(ctx, newVenue)
}

// completeCoordinates geocodes the candidate's address when the listing
// carries none, so both the distance gate and the inserted row have a
// position. Best effort.
func (r *Resolver) completeCoordinates(ctx context.Context, candidate *VenueCandidate) {
	if r.geocoder == nil || candidate.hasCoordinates() {
		return
	}
	address := candidate.fullAddress()
	if address == "" {
		return
	}
	result, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		r.log.Warnf("geocoding %q failed: %v", address, err)
		return
	}
	if result == nil {
		return
	}
	candidate.Latitude = &result.Latitude
	candidate.Longitude = &result.Longitude
	if candidate.Address == "" {
		candidate.Address = result.FormattedAddress
	}
	if candidate.City == "" {
		candidate.City = result.Components.City
	}
	if candidate.Country == "" {
		candidate.Country = result.Components.Country
	}
}

// distanceGate reports whether a fuzzy venue match is geographically
// plausible. Rows or candidates without coordinates pass: there is nothing to
// contradict.
func (r *Resolver) distanceGate(existing *model.Venue, candidate VenueCandidate) (float64, bool) {
	if !existing.HasCoordinates() || !candidate.hasCoordinates() {
		return 0, true
	}
	radius := r.cfg.Pipeline.VenueMaxDistanceKM
	if candidate.Festival {
		radius = r.cfg.Pipeline.FestivalMaxDistanceKM
	}
	distance := haversineKM(*existing.Latitude, *existing.Longitude, *candidate.Latitude, *candidate.Longitude)
	return distance, distance <= radius
}

// backfillVenue fills gaps on a matched row from the candidate. Existing
// coordinates are never overwritten; a fuzzy match must not drag a venue
// across the map.
func (r *Resolver) backfillVenue(ctx context.Context, venue *model.Venue, candidate VenueCandidate) *model.Venue {
	changed := false
	if venue.Address == "" && candidate.Address != "" {
		venue.Address = candidate.Address
		changed = true
	}
	if venue.City == "" && candidate.City != "" {
		venue.City = candidate.City
		changed = true
	}
	if venue.Country == "" && candidate.Country != "" {
		venue.Country = candidate.Country
		changed = true
	}
	if !venue.HasCoordinates() && candidate.hasCoordinates() {
		venue.Latitude = candidate.Latitude
		venue.Longitude = candidate.Longitude
		changed = true
	}
	if venue.ExternalID == nil && candidate.ExternalID != "" {
		externalID := candidate.ExternalID
		venue.ExternalID = &externalID
		changed = true
	}
	if !changed {
		return venue
	}
	updated, err := r.store.Venue().Update(ctx, *venue)
	if err != nil {
		r.log.Warnf("backfilling venue %s failed: %v", venue.ID, err)
		return venue
	}
	return updated
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}
