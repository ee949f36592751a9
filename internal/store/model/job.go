package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Import job lifecycle states.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Error kinds persisted with a failed job.
const (
	ErrorKindTransient  = "transient"
	ErrorKindPermanent  = "permanent"
	ErrorKindValidation = "validation"
	ErrorKindTimeout    = "timeout"
)

const DefaultMaxRetries = 5

// JobLogEntry is one line of the append-only processing trail kept on the job.
type JobLogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// JobError is the structured failure detail stored alongside the human message.
type JobError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// JobResult summarizes a completed pipeline run.
type JobResult struct {
	EventID     *uuid.UUID
	ArtistCount int
	Duration    time.Duration
}

// ImportJob is one unit of ingestion work: a single source URL moving through
// pending → processing → {completed|failed}, with a bounded retry budget.
type ImportJob struct {
	gorm.Model
	ID        uuid.UUID `gorm:"primaryKey"`
	SourceURL string    `gorm:"uniqueIndex;not null"`
	Status    string    `gorm:"index;not null"`
	Priority  int       `gorm:"index;not null;default:0"`
	// ForceFestival skips detection and treats the listing as a festival.
	ForceFestival         bool `gorm:"not null;default:false"`
	RetryCount            int  `gorm:"index:idx_import_jobs_retry_budget;not null;default:0"`
	MaxRetries            int  `gorm:"index:idx_import_jobs_retry_budget;not null;default:5"`
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	// SourcePayload caches the scrape result so retries do not re-fetch.
	SourcePayload []byte `gorm:"type:jsonb"`
	ErrorMessage  string
	ErrorDetail   *JSONField[JobError]      `gorm:"type:jsonb"`
	Logs          *JSONField[[]JobLogEntry] `gorm:"type:jsonb"`
	EventID       *uuid.UUID
	ArtistCount   int
	DurationMS    int64
}

type ImportJobList []ImportJob

func (j ImportJob) String() string {
	v, _ := json.Marshal(j)
	return string(v)
}

func NewImportJob(sourceURL string, priority int) *ImportJob {
	return &ImportJob{
		ID:         uuid.New(),
		SourceURL:  sourceURL,
		Status:     JobStatusPending,
		Priority:   priority,
		MaxRetries: DefaultMaxRetries,
	}
}

// RetryExhausted reports whether the job has burned its whole retry budget.
func (j *ImportJob) RetryExhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// RetryEligibleAt returns the earliest instant a failed job may be claimed
// again: one minute after the last update, doubling with every prior attempt.
func (j *ImportJob) RetryEligibleAt() time.Time {
	return j.UpdatedAt.Add(time.Duration(1<<uint(j.RetryCount)) * time.Minute)
}

// ClaimableAt reports whether a worker could take the job at ts.
func (j *ImportJob) ClaimableAt(ts time.Time) bool {
	switch j.Status {
	case JobStatusPending:
		return true
	case JobStatusFailed:
		return !j.RetryExhausted() && !ts.Before(j.RetryEligibleAt())
	default:
		return false
	}
}

// AppendLog adds one entry to the processing trail without touching earlier ones.
func (j *ImportJob) AppendLog(level, message string) {
	entry := JobLogEntry{Time: time.Now().UTC(), Level: level, Message: message}
	if j.Logs == nil {
		j.Logs = MakeJSONField([]JobLogEntry{entry})
		return
	}
	j.Logs.Data = append(j.Logs.Data, entry)
}
