package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/internal/store/model"
)

var legalSourceSchemes = []string{"http", "https"}

// ImportService is the enqueue/inspection surface over the job queue.
type ImportService struct {
	store store.Store
	cfg   *config.Config
}

func NewImportService(store store.Store, cfg *config.Config) *ImportService {
	return &ImportService{store: store, cfg: cfg}
}

// Enqueue registers a source URL for ingestion. The call is idempotent per
// URL: a live job is returned as-is, a job that exhausted its retries is
// reset for another round. The bool reports whether a new job was created.
func (s *ImportService) Enqueue(ctx context.Context, sourceURL string, priority int, forceFestival bool) (*model.ImportJob, bool, error) {
	if err := validateSourceURL(sourceURL); err != nil {
		return nil, false, err
	}

	existing, err := s.store.Job().GetBySourceURL(ctx, sourceURL)
	if err == nil {
		if existing.Status == model.JobStatusFailed && existing.RetryExhausted() {
			zap.S().Named("import").Infof("re-enqueue of exhausted job %s, resetting", existing.ID)
			reset, err := s.store.Job().ResetForRetry(ctx, existing.ID)
			return reset, false, err
		}
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, false, err
	}

	job := model.NewImportJob(sourceURL, priority)
	job.ForceFestival = forceFestival
	if s.cfg.Pipeline.MaxRetries > 0 {
		job.MaxRetries = s.cfg.Pipeline.MaxRetries
	}
	created, err := s.store.Job().Create(ctx, *job)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func validateSourceURL(sourceURL string) error {
	parsed, err := url.ParseRequestURI(sourceURL)
	if err != nil {
		return NewErrInvalidSourceURL(sourceURL, err.Error())
	}
	if !funk.ContainsString(legalSourceSchemes, parsed.Scheme) {
		return NewErrInvalidSourceURL(sourceURL, "scheme must be http or https")
	}
	if parsed.Host == "" {
		return NewErrInvalidSourceURL(sourceURL, "missing host")
	}
	return nil
}

func (s *ImportService) Get(ctx context.Context, id uuid.UUID) (*model.ImportJob, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

// List returns recent jobs, newest first, optionally filtered by status.
func (s *ImportService) List(ctx context.Context, status string, limit int) (model.ImportJobList, error) {
	filter := store.NewJobQueryFilter()
	if status != "" {
		filter = filter.ByStatus(status)
	}
	opts := store.NewJobQueryOptions().WithSortOrder(store.SortByNewestFirst)
	if limit > 0 {
		opts = opts.WithLimit(limit)
	}
	return s.store.Job().List(ctx, filter, opts)
}

// Failures returns jobs whose retry budget is exhausted, newest first; the
// operational view backing manual resets.
func (s *ImportService) Failures(ctx context.Context, limit int) (model.ImportJobList, error) {
	filter := store.NewJobQueryFilter().ByStatus(model.JobStatusFailed).ByRetryExhausted()
	opts := store.NewJobQueryOptions().WithSortOrder(store.SortByNewestFirst)
	if limit > 0 {
		opts = opts.WithLimit(limit)
	}
	return s.store.Job().List(ctx, filter, opts)
}

func (s *ImportService) Stats(ctx context.Context) (model.QueueStats, error) {
	return s.store.Job().Stats(ctx)
}

// Retry manually resets a failed job: status back to pending, retry budget
// restored. Jobs in any other state are refused.
func (s *ImportService) Retry(ctx context.Context, id uuid.UUID) (*model.ImportJob, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if job.Status != model.JobStatusFailed {
		return nil, NewErrJobNotRetryable(id, job.Status)
	}
	zap.S().Named("import").Infof("manual retry of job %s", id)
	return s.store.Job().ResetForRetry(ctx, id)
}
