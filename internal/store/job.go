package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nightgrid/event-pipeline/internal/store/model"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimOrder ranks claim candidates: urgent first, fresh work before retries,
// oldest first within a class.
const claimOrder = "priority DESC, CASE WHEN status = 'pending' THEN 0 ELSE 1 END, created_at ASC"

// claimableWherePg gates failed jobs behind the exponentially growing backoff
// window: one minute doubled per prior attempt, anchored on updated_at.
const claimableWherePg = `status = ? OR (status = ? AND retry_count < max_retries AND updated_at <= now() - interval '1 minute' * power(2, retry_count))`

// claimBatchSize bounds how many candidates a compare-and-swap claim walks
// before giving up the poll cycle.
const claimBatchSize = 10

type Job interface {
	Create(ctx context.Context, job model.ImportJob) (*model.ImportJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ImportJob, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (*model.ImportJob, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.ImportJobList, error)
	ClaimNext(ctx context.Context) (*model.ImportJob, error)
	Complete(ctx context.Context, id uuid.UUID, result model.JobResult) error
	Fail(ctx context.Context, id uuid.UUID, jobErr model.JobError) error
	FailTerminal(ctx context.Context, id uuid.UUID, jobErr model.JobError) error
	Release(ctx context.Context, id uuid.UUID) error
	ResetForRetry(ctx context.Context, id uuid.UUID) (*model.ImportJob, error)
	ResetStalled(ctx context.Context, stallWindow time.Duration) (int64, error)
	AppendLog(ctx context.Context, id uuid.UUID, level, message string) error
	SetSourcePayload(ctx context.Context, id uuid.UUID, payload []byte) error
	Stats(ctx context.Context) (model.QueueStats, error)
	InitialMigration(ctx context.Context) error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.ImportJob{})
}

func (s *JobStore) Create(ctx context.Context, job model.ImportJob) (*model.ImportJob, error) {
	if err := s.getDB(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating import job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.ImportJob, error) {
	var job model.ImportJob
	if err := s.getDB(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying import job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) GetBySourceURL(ctx context.Context, sourceURL string) (*model.ImportJob, error) {
	var job model.ImportJob
	if err := s.getDB(ctx).First(&job, "source_url = ?", sourceURL).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying import job by source url: %w", err)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.ImportJobList, error) {
	var jobs model.ImportJobList
	tx := s.getDB(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&jobs).Find(&jobs).Error; err != nil {
		return nil, err
	}

	return jobs, nil
}

// ClaimNext hands the single most eligible job to the caller and flips it to
// processing, atomically with respect to competing workers. It returns
// (nil, nil) when no job is eligible.
func (s *JobStore) ClaimNext(ctx context.Context) (*model.ImportJob, error) {
	if s.db.Dialector.Name() == "postgres" {
		return s.claimSkipLocked(ctx)
	}
	return s.claimCompareAndSwap(ctx)
}

// claimSkipLocked relies on FOR UPDATE SKIP LOCKED so that concurrent claims
// never block on, nor observe, each other's candidate row.
func (s *JobStore) claimSkipLocked(ctx context.Context) (*model.ImportJob, error) {
	var job model.ImportJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(claimableWherePg, model.JobStatusPending, model.JobStatusFailed).
			Order(claimOrder).
			First(&job)
		if result.Error != nil {
			return result.Error
		}

		now := time.Now().UTC()
		if err := tx.Model(&model.ImportJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":                  model.JobStatusProcessing,
				"processing_started_at":   now,
				"processing_completed_at": nil,
			}).Error; err != nil {
			return err
		}

		job.Status = model.JobStatusProcessing
		job.ProcessingStartedAt = &now
		job.ProcessingCompletedAt = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming import job: %w", err)
	}
	return &job, nil
}

// claimCompareAndSwap is the fallback for datastores without row locks
// (sqlite): read a batch of candidates, then claim with an update guarded by
// the status we read. RowsAffected == 0 means another worker won the race, so
// we move on to the next candidate rather than report an error.
func (s *JobStore) claimCompareAndSwap(ctx context.Context) (*model.ImportJob, error) {
	var candidates model.ImportJobList
	err := s.getDB(ctx).
		Where("status IN ?", []string{model.JobStatusPending, model.JobStatusFailed}).
		Order(claimOrder).
		Limit(claimBatchSize).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("listing claim candidates: %w", err)
	}

	now := time.Now().UTC()
	for i := range candidates {
		job := candidates[i]
		if !job.ClaimableAt(now) {
			continue
		}

		result := s.getDB(ctx).Model(&model.ImportJob{}).
			Where("id = ? AND status = ?", job.ID, job.Status).
			Updates(map[string]any{
				"status":                  model.JobStatusProcessing,
				"processing_started_at":   now,
				"processing_completed_at": nil,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("claiming import job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			metrics.IncreaseClaimConflictsMetric()
			continue
		}

		job.Status = model.JobStatusProcessing
		job.ProcessingStartedAt = &now
		job.ProcessingCompletedAt = nil
		return &job, nil
	}

	return nil, nil
}

func (s *JobStore) Complete(ctx context.Context, id uuid.UUID, result model.JobResult) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":                  model.JobStatusCompleted,
		"processing_completed_at": now,
		"artist_count":            result.ArtistCount,
		"duration_ms":             result.Duration.Milliseconds(),
		"error_message":           "",
		"error_detail":            nil,
	}
	if result.EventID != nil {
		updates["event_id"] = *result.EventID
	}
	return s.update(ctx, id, updates)
}

// Fail records a failed attempt and consumes one unit of the retry budget.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, jobErr model.JobError) error {
	return s.update(ctx, id, map[string]any{
		"status":        model.JobStatusFailed,
		"retry_count":   gorm.Expr("retry_count + 1"),
		"error_message": jobErr.Message,
		"error_detail":  model.MakeJSONField(jobErr),
	})
}

// FailTerminal fails the job without a retry cycle by exhausting the budget in
// one step; used for validation failures that no retry can repair.
func (s *JobStore) FailTerminal(ctx context.Context, id uuid.UUID, jobErr model.JobError) error {
	return s.update(ctx, id, map[string]any{
		"status":        model.JobStatusFailed,
		"retry_count":   gorm.Expr("max_retries"),
		"error_message": jobErr.Message,
		"error_detail":  model.MakeJSONField(jobErr),
	})
}

// Release puts a claimed job back to pending without consuming retry budget;
// used when a run is abandoned on timeout.
func (s *JobStore) Release(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, map[string]any{
		"status":                model.JobStatusPending,
		"processing_started_at": nil,
	})
}

// ResetForRetry manually restores a terminally failed job to a fresh pending
// state, keeping its log trail.
func (s *JobStore) ResetForRetry(ctx context.Context, id uuid.UUID) (*model.ImportJob, error) {
	if err := s.update(ctx, id, map[string]any{
		"status":                  model.JobStatusPending,
		"retry_count":             0,
		"error_message":           "",
		"error_detail":            nil,
		"processing_started_at":   nil,
		"processing_completed_at": nil,
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ResetStalled returns jobs stuck in processing beyond the stall window back
// to pending, recovering work lost to crashed workers.
func (s *JobStore) ResetStalled(ctx context.Context, stallWindow time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-stallWindow)
	result := s.getDB(ctx).Model(&model.ImportJob{}).
		Where("status = ? AND processing_started_at < ?", model.JobStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":                model.JobStatusPending,
			"processing_started_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("resetting stalled jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// AppendLog adds one entry to the job's log array. The claim protocol
// guarantees a single owner per processing job, so read-modify-write is safe.
func (s *JobStore) AppendLog(ctx context.Context, id uuid.UUID, level, message string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	job.AppendLog(level, message)
	return s.update(ctx, id, map[string]any{"logs": job.Logs})
}

func (s *JobStore) SetSourcePayload(ctx context.Context, id uuid.UUID, payload []byte) error {
	return s.update(ctx, id, map[string]any{"source_payload": payload})
}

func (s *JobStore) Stats(ctx context.Context) (model.QueueStats, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := s.getDB(ctx).Model(&model.ImportJob{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return model.QueueStats{}, fmt.Errorf("counting jobs by status: %w", err)
	}

	stats := model.QueueStats{}
	for _, row := range rows {
		switch row.Status {
		case model.JobStatusPending:
			stats.Pending = row.Total
		case model.JobStatusProcessing:
			stats.Processing = row.Total
		case model.JobStatusCompleted:
			stats.Completed = row.Total
		case model.JobStatusFailed:
			stats.Failed = row.Total
		}
	}

	if err := s.getDB(ctx).Model(&model.ImportJob{}).
		Where("status = ? AND retry_count >= max_retries", model.JobStatusFailed).
		Count(&stats.Exhausted).Error; err != nil {
		return model.QueueStats{}, fmt.Errorf("counting exhausted jobs: %w", err)
	}

	var oldest model.ImportJob
	err := s.getDB(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("created_at ASC").
		First(&oldest).Error
	switch {
	case err == nil:
		created := oldest.CreatedAt
		stats.OldestPending = &created
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return model.QueueStats{}, fmt.Errorf("finding oldest pending job: %w", err)
	}

	return stats, nil
}

func (s *JobStore) update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	result := s.getDB(ctx).Model(&model.ImportJob{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating import job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
