// Package genres reduces raw tag counts gathered from an event's artists (or
// a promoter's events) to a ranked, capped genre set and persists the links.
package genres

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
)

type Aggregator struct {
	store       store.Store
	banned      map[string]bool
	minCount    int
	cap         int
	festivalCap int
}

func New(s store.Store, cfg *config.Config) *Aggregator {
	banned := make(map[string]bool, len(cfg.Pipeline.GenreBanList))
	for _, name := range cfg.Pipeline.GenreBanList {
		banned[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Aggregator{
		store:       s,
		banned:      banned,
		minCount:    cfg.Pipeline.GenreMinCount,
		cap:         cfg.Pipeline.GenreCap,
		festivalCap: cfg.Pipeline.FestivalGenreCap,
	}
}

// Aggregate folds counts case-insensitively, drops banned tags, keeps genres
// seen at least minCount times sorted by count descending (name ascending on
// ties) and caps the result. Festivals get the wider cap since they
// legitimately span more genres. When nothing clears the threshold, the top
// non-banned genres are kept instead: sparse data never leaves an entity
// genre-less while any usable tag exists.
func (a *Aggregator) Aggregate(counts map[string]int, festival bool) []string {
	limit := a.cap
	if festival {
		limit = a.festivalCap
	}

	folded := map[string]int{}
	for name, count := range counts {
		lowered := strings.ToLower(strings.TrimSpace(name))
		if lowered == "" || count <= 0 || a.banned[lowered] {
			continue
		}
		folded[lowered] += count
	}

	type genreCount struct {
		name  string
		count int
	}
	ranked := make([]genreCount, 0, len(folded))
	for name, count := range folded {
		ranked = append(ranked, genreCount{name: name, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})

	var selected []string
	for _, gc := range ranked {
		if gc.count >= a.minCount {
			selected = append(selected, gc.name)
		}
	}
	if len(selected) == 0 {
		for _, gc := range ranked {
			selected = append(selected, gc.name)
		}
	}
	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

// AssignEventGenres persists the aggregate for an event, creating missing
// genre rows, and returns what was linked.
func (a *Aggregator) AssignEventGenres(ctx context.Context, eventID uuid.UUID, counts map[string]int, festival bool) ([]model.Genre, error) {
	selected := a.Aggregate(counts, festival)
	if len(selected) == 0 {
		return nil, nil
	}
	linked, err := a.ensureGenres(ctx, selected)
	if err != nil {
		return nil, err
	}
	if err := a.store.Event().ReplaceGenres(ctx, eventID, linked); err != nil {
		return nil, err
	}
	return linked, nil
}

// AssignPromoterGenres persists the aggregate over a promoter's past events.
func (a *Aggregator) AssignPromoterGenres(ctx context.Context, promoterID uuid.UUID, counts map[string]int, festival bool) ([]model.Genre, error) {
	selected := a.Aggregate(counts, festival)
	if len(selected) == 0 {
		return nil, nil
	}
	linked, err := a.ensureGenres(ctx, selected)
	if err != nil {
		return nil, err
	}
	if err := a.store.Promoter().ReplaceGenres(ctx, promoterID, linked); err != nil {
		return nil, err
	}
	return linked, nil
}

func (a *Aggregator) ensureGenres(ctx context.Context, names []string) ([]model.Genre, error) {
	genres := make([]model.Genre, 0, len(names))
	for _, name := range names {
		genre, err := a.store.Genre().GetOrCreate(ctx, name)
		if err != nil {
			return nil, err
		}
		genres = append(genres, *genre)
	}
	return genres, nil
}
