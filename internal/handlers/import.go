package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store/model"
)

const defaultListLimit = 50

var legalStatusFilters = []string{
	model.JobStatusPending,
	model.JobStatusProcessing,
	model.JobStatusCompleted,
	model.JobStatusFailed,
}

type createImportRequest struct {
	URL           string `json:"url"`
	Priority      int    `json:"priority,omitempty"`
	ForceFestival bool   `json:"forceFestival,omitempty"`
}

// jobReply is the external face of an import job. The cached scrape payload
// stays internal.
type jobReply struct {
	ID            uuid.UUID           `json:"id"`
	SourceURL     string              `json:"sourceUrl"`
	Status        string              `json:"status"`
	Priority      int                 `json:"priority"`
	ForceFestival bool                `json:"forceFestival,omitempty"`
	RetryCount    int                 `json:"retryCount"`
	MaxRetries    int                 `json:"maxRetries"`
	ErrorMessage  string              `json:"errorMessage,omitempty"`
	ErrorDetail   *model.JobError     `json:"errorDetail,omitempty"`
	Logs          []model.JobLogEntry `json:"logs,omitempty"`
	EventID       *uuid.UUID          `json:"eventId,omitempty"`
	ArtistCount   int                 `json:"artistCount,omitempty"`
	DurationMS    int64               `json:"durationMs,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func (jr jobReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func newJobReply(job *model.ImportJob) jobReply {
	reply := jobReply{
		ID:            job.ID,
		SourceURL:     job.SourceURL,
		Status:        job.Status,
		Priority:      job.Priority,
		ForceFestival: job.ForceFestival,
		RetryCount:    job.RetryCount,
		MaxRetries:    job.MaxRetries,
		ErrorMessage:  job.ErrorMessage,
		EventID:       job.EventID,
		ArtistCount:   job.ArtistCount,
		DurationMS:    job.DurationMS,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	if job.ErrorDetail != nil {
		detail := job.ErrorDetail.Data
		reply.ErrorDetail = &detail
	}
	if job.Logs != nil {
		reply.Logs = job.Logs.Data
	}
	return reply
}

type jobListReply struct {
	Jobs []jobReply `json:"jobs"`
}

func (jlr jobListReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func newJobListReply(jobs model.ImportJobList) jobListReply {
	reply := jobListReply{Jobs: make([]jobReply, 0, len(jobs))}
	for i := range jobs {
		reply.Jobs = append(reply.Jobs, newJobReply(&jobs[i]))
	}
	return reply
}

type statsReply struct {
	model.QueueStats
}

func (sr statsReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type errorReply struct {
	Error string `json:"error"`
}

func (er errorReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	render.Status(r, status)
	_ = render.Render(w, r, errorReply{Error: err.Error()})
}

// CreateImport enqueues a source URL. Re-posting a URL with a live job
// returns that job with 200 instead of creating a duplicate.
func (h *Handler) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req createImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, created, err := h.imports.Enqueue(r.Context(), req.URL, req.Priority, req.ForceFestival)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	if created {
		render.Status(r, http.StatusCreated)
	}
	_ = render.Render(w, r, newJobReply(job))
}

func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !funk.ContainsString(legalStatusFilters, status) {
		renderError(w, r, http.StatusBadRequest, errors.New("unknown status filter"))
		return
	}

	jobs, err := h.imports.List(r.Context(), status, queryInt(r, "limit", defaultListLimit))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, newJobListReply(jobs))
}

// ListFailures returns jobs whose retry budget is exhausted, the candidates
// for a manual retry.
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.imports.Failures(r.Context(), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, newJobListReply(jobs))
}

func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.imports.Get(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, newJobReply(job))
}

// RetryImport resets a failed job to pending with a fresh retry budget.
func (h *Handler) RetryImport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.imports.Retry(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, newJobReply(job))
}

// ProcessNext claims and runs one job synchronously, for operators draining
// the queue by hand. 204 means nothing was claimable.
func (h *Handler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	job, err := h.pipeline.ProcessNext(r.Context())
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = render.Render(w, r, newJobReply(job))
}

func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.imports.Stats(r.Context())
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	_ = render.Render(w, r, statsReply{QueueStats: stats})
}

func (h *Handler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Warnw("request failed", "path", r.URL.Path, "error", err)
	switch err.(type) {
	case *service.ErrJobNotFound:
		renderError(w, r, http.StatusNotFound, err)
	case *service.ErrInvalidSourceURL:
		renderError(w, r, http.StatusBadRequest, err)
	case *service.ErrJobNotRetryable:
		renderError(w, r, http.StatusConflict, err)
	default:
		renderError(w, r, http.StatusInternalServerError, err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
