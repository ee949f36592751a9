package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/client"
	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/detector"
	"github.com/nightgrid/event-pipeline/internal/genres"
	"github.com/nightgrid/event-pipeline/internal/resolver"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
	"github.com/nightgrid/event-pipeline/internal/timetable"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

// settleTimeout bounds the store writes that record a job's outcome. They run
// on a fresh context so a job interrupted mid-flight still settles.
const settleTimeout = 10 * time.Second

// Scraper fetches the raw listing behind a source URL.
type Scraper interface {
	Scrape(ctx context.Context, sourceURL string) (*client.ScrapedEvent, error)
}

// TagSource returns genre tags for an artist the search directory knows.
type TagSource interface {
	GetTags(ctx context.Context, externalID string) ([]string, error)
}

// TimetableSource lists community festival timetables and fetches their raw
// CSV exports.
type TimetableSource interface {
	ListAll(ctx context.Context) ([]client.DirectoryEntry, error)
	FetchTimetable(ctx context.Context, id string) ([]byte, error)
}

// LineupSource pulls performances out of free-form event descriptions.
type LineupSource interface {
	Extract(ctx context.Context, description string) ([]client.ExtractedPerformance, error)
}

// Collaborators bundles the external services a pipeline run may call.
// Scraper is required; a nil entry elsewhere disables the step that needs it.
type Collaborators struct {
	Scraper   Scraper
	Tags      TagSource
	Directory TimetableSource
	Extractor LineupSource
}

// Pipeline runs a claimed import job through scraping, festival detection,
// entity resolution, lineup assembly and genre aggregation, and settles the
// job row on every exit path.
type Pipeline struct {
	store    store.Store
	resolver *resolver.Resolver
	detector *detector.Detector
	genres   *genres.Aggregator
	collab   Collaborators
	cfg      *config.Config
	executor *retry.Executor
	log      *zap.SugaredLogger
}

func NewPipeline(s store.Store, res *resolver.Resolver, det *detector.Detector, agg *genres.Aggregator, collab Collaborators, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store:    s,
		resolver: res,
		detector: det,
		genres:   agg,
		collab:   collab,
		cfg:      cfg,
		executor: retry.NewExecutor(cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryBaseDelay, cfg.Pipeline.RetryMaxDelay),
		log:      zap.S().Named("pipeline"),
	}
}

// ProcessNext claims the next eligible job and runs it to a settled state.
// It returns nil without error when the queue has nothing claimable.
func (p *Pipeline) ProcessNext(ctx context.Context) (*model.ImportJob, error) {
	job, err := p.store.Job().ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	_ = p.Run(ctx, job)

	settled, err := p.store.Job().Get(ctx, job.ID)
	if err != nil {
		return job, nil
	}
	return settled, nil
}

// Run executes the pipeline for a claimed job under the per-job wall-clock
// budget. An interrupted run releases the claim without consuming retry
// budget; a validation failure is terminal; anything else consumes one
// attempt. The returned error is the processing error, already recorded on
// the job row.
func (p *Pipeline) Run(ctx context.Context, job *model.ImportJob) error {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.JobTimeout)
	defer cancel()

	started := time.Now()
	result, stage, err := p.run(runCtx, job)
	metrics.ObserveJobDuration(time.Since(started).Seconds())

	// settlement must land even when the run context is gone
	settleCtx, settleCancel := context.WithTimeout(context.Background(), settleTimeout)
	defer settleCancel()

	if err == nil {
		result.Duration = time.Since(started)
		if completeErr := p.store.Job().Complete(settleCtx, job.ID, result); completeErr != nil {
			return fmt.Errorf("completing job %s: %w", job.ID, completeErr)
		}
		metrics.IncreaseJobsProcessedMetric("completed")
		p.log.Infow("job completed", "job", job.ID, "artists", result.ArtistCount, "duration", result.Duration)
		return nil
	}

	if runCtx.Err() != nil {
		// shutdown or the job budget fired; the claim goes back untouched
		_ = p.store.Job().AppendLog(settleCtx, job.ID, "warn", fmt.Sprintf("run interrupted during %s: %v", stage, err))
		if releaseErr := p.store.Job().Release(settleCtx, job.ID); releaseErr != nil {
			return fmt.Errorf("releasing job %s: %w", job.ID, releaseErr)
		}
		metrics.IncreaseJobsProcessedMetric("timeout")
		p.log.Warnw("job released after interruption", "job", job.ID, "stage", stage)
		return err
	}

	return p.fail(settleCtx, job, stage, err)
}

// fail settles a non-interruption failure. Validation failures exhaust the
// job immediately; everything else consumes one retry attempt.
func (p *Pipeline) fail(ctx context.Context, job *model.ImportJob, stage string, err error) error {
	var validation *ErrValidation
	if errors.As(err, &validation) {
		jobErr := model.JobError{Kind: model.ErrorKindValidation, Stage: stage, Message: err.Error()}
		if failErr := p.store.Job().FailTerminal(ctx, job.ID, jobErr); failErr != nil {
			return fmt.Errorf("failing job %s: %w", job.ID, failErr)
		}
		metrics.IncreaseJobsProcessedMetric("validation_failed")
		p.log.Warnw("job failed validation", "job", job.ID, "stage", stage, "error", err)
		return err
	}

	kind := model.ErrorKindPermanent
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = model.ErrorKindTimeout
	case retry.IsTransient(err):
		kind = model.ErrorKindTransient
	}
	jobErr := model.JobError{Kind: kind, Stage: stage, Message: err.Error()}
	if failErr := p.store.Job().Fail(ctx, job.ID, jobErr); failErr != nil {
		return fmt.Errorf("failing job %s: %w", job.ID, failErr)
	}
	metrics.IncreaseJobsProcessedMetric("failed")
	p.log.Errorw("job failed", "job", job.ID, "stage", stage, "kind", kind, "error", err)
	return err
}

// run walks the job through every stage and reports which stage broke. Scrape,
// validation and the event upsert abort the job; every other stage degrades to
// a logged warning.
func (p *Pipeline) run(ctx context.Context, job *model.ImportJob) (model.JobResult, string, error) {
	scraped, err := p.loadOrScrape(ctx, job)
	if err != nil {
		return model.JobResult{}, "scrape", err
	}

	if err := validateListing(scraped); err != nil {
		return model.JobResult{}, "validate", err
	}

	detection := p.detector.Detect(detector.Input{
		Name:        scraped.Name,
		Description: scraped.Description,
		Start:       scraped.StartTime(),
		End:         scraped.EndTime(),
	}, job.ForceFestival)
	p.logStep(ctx, job, "info", fmt.Sprintf("detection: festival=%t confidence=%d (%s)",
		detection.IsFestival, detection.Confidence, strings.Join(detection.Reasons, "; ")))

	slots := p.collectSlots(ctx, job, scraped, detection.IsFestival)

	venue := p.resolveVenue(ctx, job, scraped, detection.IsFestival)
	promoters := p.resolvePromoters(ctx, job, scraped)

	event, err := p.upsertEvent(ctx, job, scraped, detection.IsFestival, venue, promoters)
	if err != nil {
		return model.JobResult{}, "upsert", err
	}

	artists := p.attachLineup(ctx, job, event, slots, detection.IsFestival)

	p.assignGenres(ctx, job, event, artists, promoters, detection.IsFestival)

	return model.JobResult{EventID: &event.ID, ArtistCount: len(artists)}, "", nil
}

// loadOrScrape reuses the payload cached on the job by an earlier attempt, so
// a retry never re-fetches a listing it already paid for.
func (p *Pipeline) loadOrScrape(ctx context.Context, job *model.ImportJob) (*client.ScrapedEvent, error) {
	if len(job.SourcePayload) > 0 {
		var cached client.ScrapedEvent
		if err := json.Unmarshal(job.SourcePayload, &cached); err == nil {
			p.logStep(ctx, job, "info", "reusing scraped payload from earlier attempt")
			return &cached, nil
		}
		p.log.Warnw("discarding unreadable cached payload", "job", job.ID)
	}

	var scraped *client.ScrapedEvent
	err := p.executor.Do(ctx, "scrape", func(ctx context.Context) error {
		var scrapeErr error
		scraped, scrapeErr = p.collab.Scraper.Scrape(ctx, job.SourceURL)
		return scrapeErr
	})
	if err != nil {
		return nil, err
	}

	if payload, marshalErr := json.Marshal(scraped); marshalErr == nil {
		if storeErr := p.store.Job().SetSourcePayload(ctx, job.ID, payload); storeErr != nil {
			p.log.Warnw("caching scraped payload", "job", job.ID, "error", storeErr)
		}
	}
	p.logStep(ctx, job, "info", fmt.Sprintf("scraped listing %q", scraped.Name))
	return scraped, nil
}

func validateListing(scraped *client.ScrapedEvent) error {
	if strings.TrimSpace(scraped.Name) == "" {
		return NewErrValidation("title")
	}
	if scraped.StartTime() == nil {
		return NewErrValidation("start time")
	}
	return nil
}

// collectSlots gathers the lineup. Festivals first try the community
// timetable directory; anything still empty falls back to extracting names
// from the description. Both paths degrade to no lineup on failure.
func (p *Pipeline) collectSlots(ctx context.Context, job *model.ImportJob, scraped *client.ScrapedEvent, festival bool) []timetable.Slot {
	if festival && p.collab.Directory != nil {
		if slots := p.timetableSlots(ctx, job, scraped.Name); len(slots) > 0 {
			return slots
		}
	}
	if p.collab.Extractor != nil && strings.TrimSpace(scraped.Description) != "" {
		return p.extractedSlots(ctx, job, scraped)
	}
	return nil
}

func (p *Pipeline) timetableSlots(ctx context.Context, job *model.ImportJob, eventName string) []timetable.Slot {
	var entries []client.DirectoryEntry
	err := p.executor.Do(ctx, "timetable list", func(ctx context.Context) error {
		var listErr error
		entries, listErr = p.collab.Directory.ListAll(ctx)
		return listErr
	})
	if err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("listing timetable directory: %v", err))
		return nil
	}

	candidates := make([]timetable.DirectoryCandidate, 0, len(entries))
	for _, entry := range entries {
		candidates = append(candidates, timetable.DirectoryCandidate{ID: entry.ID, Name: entry.Name})
	}
	match, ok := timetable.MatchDirectory(eventName, candidates, p.cfg.Pipeline.TimetableMatchThreshold)
	if !ok {
		p.logStep(ctx, job, "info", "no timetable directory entry matches the event name")
		return nil
	}

	var raw []byte
	err = p.executor.Do(ctx, "timetable fetch", func(ctx context.Context) error {
		var fetchErr error
		raw, fetchErr = p.collab.Directory.FetchTimetable(ctx, match.ID)
		return fetchErr
	})
	if err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("fetching timetable %s: %v", match.ID, err))
		return nil
	}

	slots, err := timetable.ParseCSV(bytes.NewReader(raw))
	if err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("parsing timetable %s: %v", match.ID, err))
		return nil
	}
	p.logStep(ctx, job, "info", fmt.Sprintf("matched directory timetable %q with %d slots", match.Name, len(slots)))
	return slots
}

func (p *Pipeline) extractedSlots(ctx context.Context, job *model.ImportJob, scraped *client.ScrapedEvent) []timetable.Slot {
	var performances []client.ExtractedPerformance
	err := p.executor.Do(ctx, "lineup extraction", func(ctx context.Context) error {
		var extractErr error
		performances, extractErr = p.collab.Extractor.Extract(ctx, scraped.Description)
		return extractErr
	})
	if err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("extracting lineup from description: %v", err))
		return nil
	}

	slots := make([]timetable.Slot, 0, len(performances))
	for _, perf := range performances {
		if strings.TrimSpace(perf.Name) == "" {
			continue
		}
		slot := timetable.Slot{
			Artist: strings.TrimSpace(perf.Name),
			Stage:  strings.TrimSpace(perf.Stage),
			Mode:   strings.ToUpper(strings.TrimSpace(perf.Mode)),
		}
		if ts, ok := parseExtractedTime(perf.Time); ok {
			slot.Start = ts
		}
		slots = append(slots, slot)
	}
	if len(slots) > 0 {
		p.logStep(ctx, job, "info", fmt.Sprintf("extracted %d performances from description", len(slots)))
	}
	return slots
}

// parseExtractedTime is lenient: the extractor is asked for RFC 3339 but
// tends to drop seconds or the offset.
func parseExtractedTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// resolveVenue maps the scraped location to a catalog venue. A missing or
// unresolvable location leaves the event venueless instead of failing it.
func (p *Pipeline) resolveVenue(ctx context.Context, job *model.ImportJob, scraped *client.ScrapedEvent, festival bool) *model.Venue {
	loc := scraped.Location
	if loc == nil || strings.TrimSpace(loc.Name) == "" {
		return nil
	}
	venue, err := p.resolver.ResolveVenue(ctx, resolver.VenueCandidate{
		Name:      loc.Name,
		Address:   loc.Address,
		City:      loc.City,
		Country:   loc.Country,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Festival:  festival,
	})
	if err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("resolving venue %q: %v", loc.Name, err))
		return nil
	}
	return venue
}

func (p *Pipeline) resolvePromoters(ctx context.Context, job *model.ImportJob, scraped *client.ScrapedEvent) []model.Promoter {
	promoters := make([]model.Promoter, 0, len(scraped.Hosts))
	for _, host := range scraped.Hosts {
		if strings.TrimSpace(host.Name) == "" {
			continue
		}
		promoter, err := p.resolver.ResolvePromoter(ctx, resolver.PromoterCandidate{
			Name:        host.Name,
			ExternalID:  host.ID,
			ExternalURL: host.URL,
		})
		if err != nil {
			p.logStep(ctx, job, "warn", fmt.Sprintf("resolving promoter %q: %v", host.Name, err))
			continue
		}
		promoters = append(promoters, *promoter)
	}
	return promoters
}

// upsertEvent writes the normalized listing keyed by source URL and rewires
// its promoter links.
func (p *Pipeline) upsertEvent(ctx context.Context, job *model.ImportJob, scraped *client.ScrapedEvent, festival bool, venue *model.Venue, promoters []model.Promoter) (*model.Event, error) {
	eventType := "event"
	if festival {
		eventType = "festival"
	}
	event := model.Event{
		Title:       strings.TrimSpace(scraped.Name),
		Description: scraped.Description,
		EventType:   eventType,
		SourceURL:   job.SourceURL,
		TicketURL:   scraped.TicketURL,
		StartsAt:    scraped.StartTime(),
		EndsAt:      scraped.EndTime(),
	}
	if scraped.Photo != nil {
		event.ImageURL = scraped.Photo.URL
	}
	if venue != nil {
		event.VenueID = &venue.ID
	}

	stored, err := p.store.Event().Upsert(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := p.store.Event().ReplacePromoters(ctx, stored.ID, promoters); err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("linking promoters: %v", err))
	}
	p.logStep(ctx, job, "info", fmt.Sprintf("upserted %s %q", eventType, stored.Title))
	return stored, nil
}

// attachLineup resolves every billed artist and rewrites the event's slots,
// tagging slots that share a stage and interval as one joint performance. For
// festivals it also derives the stage list and day segmentation and stamps
// each timed slot with its festival day.
func (p *Pipeline) attachLineup(ctx context.Context, job *model.ImportJob, event *model.Event, slots []timetable.Slot, festival bool) []model.Artist {
	if len(slots) == 0 {
		return nil
	}

	slots = markCollaborations(slots)
	resolved := p.resolveArtists(ctx, job, slots)

	var days []timetable.FestivalDay
	if festival {
		days = p.storeLineupSummary(ctx, job, event.ID, slots)
	}

	eventSlots := make([]model.EventArtist, 0, len(slots))
	artists := make([]model.Artist, 0, len(slots))
	seen := make(map[uuid.UUID]bool)
	for i, slot := range slots {
		artist := resolved[i]
		if artist == nil {
			continue
		}
		eventSlot := model.EventArtist{
			EventID:    event.ID,
			ArtistID:   artist.ID,
			Stage:      slot.Stage,
			Mode:       slot.Mode,
			CustomName: slot.CustomName,
		}
		if !slot.Start.IsZero() {
			start := slot.Start
			eventSlot.StartsAt = &start
			eventSlot.Day = timetable.DayIndexFor(days, slot.Start)
		}
		if !slot.End.IsZero() {
			end := slot.End
			eventSlot.EndsAt = &end
		}
		eventSlots = append(eventSlots, eventSlot)
		if !seen[artist.ID] {
			seen[artist.ID] = true
			artists = append(artists, *artist)
		}
	}

	if err := p.store.Event().ReplaceSlots(ctx, event.ID, eventSlots); err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("storing lineup slots: %v", err))
		return artists
	}

	p.logStep(ctx, job, "info", fmt.Sprintf("attached %d lineup slots (%d artists)", len(eventSlots), len(artists)))
	return artists
}

// markCollaborations tags timed slots sharing a stage and interval as one
// joint performance. Slots split from a combined billing already carry their
// group and pass through unchanged, as do untimed slots: two extracted names
// without timestamps are not evidence of a shared set.
func markCollaborations(slots []timetable.Slot) []timetable.Slot {
	out := make([]timetable.Slot, 0, len(slots))
	for _, group := range timetable.GroupCollaborations(slots) {
		if len(group) > 1 && !group[0].Start.IsZero() && group[0].CustomName == "" {
			names := make([]string, 0, len(group))
			for _, slot := range group {
				names = append(names, slot.Artist)
			}
			combined := strings.Join(names, " b2b ")
			for i := range group {
				group[i].Mode = "B2B"
				group[i].CustomName = combined
			}
		}
		out = append(out, group...)
	}
	return out
}

// storeLineupSummary derives the stage list and day segmentation from the
// timed slots, persists them on the event and returns the days for per-slot
// day stamping.
func (p *Pipeline) storeLineupSummary(ctx context.Context, job *model.ImportJob, eventID uuid.UUID, slots []timetable.Slot) []timetable.FestivalDay {
	timed := make([]timetable.Slot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Start.IsZero() {
			timed = append(timed, slot)
		}
	}
	if len(timed) == 0 {
		return nil
	}

	seg := timetable.Segment(timed, p.cfg.Pipeline.DayGap)
	lineup := model.Lineup{Stages: seg.Stages}
	for _, day := range seg.Days {
		lineup.FestivalDays = append(lineup.FestivalDays, model.FestivalDay{
			Index:    day.Index,
			StartsAt: day.Start,
			EndsAt:   day.End,
		})
	}
	if err := p.store.Event().SetLineup(ctx, eventID, lineup); err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("storing lineup summary: %v", err))
	}
	return seg.Days
}

// resolveArtists resolves slot billings to catalog rows, at most
// EnrichmentParallelism in flight with EnrichmentDelay between launches to
// stay inside collaborator rate limits. The result is index-aligned with the
// input; unresolvable slots stay nil.
func (p *Pipeline) resolveArtists(ctx context.Context, job *model.ImportJob, slots []timetable.Slot) []*model.Artist {
	resolved := make([]*model.Artist, len(slots))
	sem := make(chan struct{}, p.cfg.Pipeline.EnrichmentParallelism)
	var wg sync.WaitGroup

	for i, slot := range slots {
		if ctx.Err() != nil {
			break
		}
		name := strings.TrimSpace(slot.Artist)
		if name == "" {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			artist, err := p.resolver.ResolveArtist(ctx, resolver.ArtistCandidate{Name: name})
			if err != nil {
				// job-log writes stay on the orchestrating goroutine
				p.log.Warnw("resolving artist", "job", job.ID, "artist", name, "error", err)
				return
			}
			resolved[i] = artist
		}(i, name)

		if p.cfg.Pipeline.EnrichmentDelay > 0 && i < len(slots)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.Pipeline.EnrichmentDelay):
			}
		}
	}
	wg.Wait()
	return resolved
}

// assignGenres tallies tags across the resolved lineup and writes the ranked
// genre sets for the event and its promoters.
func (p *Pipeline) assignGenres(ctx context.Context, job *model.ImportJob, event *model.Event, artists []model.Artist, promoters []model.Promoter, festival bool) {
	if p.collab.Tags == nil || len(artists) == 0 {
		return
	}

	counts := p.tagCounts(ctx, job, artists)
	if len(counts) == 0 {
		return
	}

	assigned, err := p.genres.AssignEventGenres(ctx, event.ID, counts, festival)
	if err != nil {
		p.logStep(ctx, job, "warn", fmt.Sprintf("assigning event genres: %v", err))
		return
	}
	names := make([]string, 0, len(assigned))
	for _, genre := range assigned {
		names = append(names, genre.Name)
	}
	p.logStep(ctx, job, "info", fmt.Sprintf("assigned genres: %s", strings.Join(names, ", ")))

	for _, promoter := range promoters {
		if _, err := p.genres.AssignPromoterGenres(ctx, promoter.ID, counts, festival); err != nil {
			p.logStep(ctx, job, "warn", fmt.Sprintf("assigning genres to promoter %q: %v", promoter.Name, err))
		}
	}
}

// tagCounts fetches tags for every lineup artist known to the search
// directory, under the same parallelism cap as artist resolution.
func (p *Pipeline) tagCounts(ctx context.Context, job *model.ImportJob, artists []model.Artist) map[string]int {
	counts := make(map[string]int)
	sem := make(chan struct{}, p.cfg.Pipeline.EnrichmentParallelism)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, artist := range artists {
		if ctx.Err() != nil {
			break
		}
		if artist.ExternalID == nil {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(name, externalID string) {
			defer wg.Done()
			defer func() { <-sem }()
			var tags []string
			err := p.executor.Do(ctx, "artist tags", func(ctx context.Context) error {
				var tagErr error
				tags, tagErr = p.collab.Tags.GetTags(ctx, externalID)
				return tagErr
			})
			if err != nil {
				p.log.Warnw("fetching artist tags", "job", job.ID, "artist", name, "error", err)
				return
			}
			mu.Lock()
			for _, tag := range tags {
				counts[tag]++
			}
			mu.Unlock()
		}(artist.Name, *artist.ExternalID)

		if p.cfg.Pipeline.EnrichmentDelay > 0 && i < len(artists)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.Pipeline.EnrichmentDelay):
			}
		}
	}
	wg.Wait()
	return counts
}

// logStep records a pipeline step on the job's persistent trail and mirrors
// it to the service log.
func (p *Pipeline) logStep(ctx context.Context, job *model.ImportJob, level, message string) {
	if err := p.store.Job().AppendLog(ctx, job.ID, level, message); err != nil {
		p.log.Warnw("appending job log", "job", job.ID, "error", err)
	}
	if level == "warn" {
		p.log.Warnw(message, "job", job.ID)
		return
	}
	p.log.Infow(message, "job", job.ID)
}
