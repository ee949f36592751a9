package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/service"
)

// Handler exposes the import queue over HTTP.
type Handler struct {
	imports  *service.ImportService
	pipeline *service.Pipeline
	log      *zap.SugaredLogger
}

func New(imports *service.ImportService, pipeline *service.Pipeline) *Handler {
	return &Handler{
		imports:  imports,
		pipeline: pipeline,
		log:      zap.S().Named("handlers"),
	}
}

// Register mounts every route on the given router.
func (h *Handler) Register(router chi.Router) {
	router.Get("/health", h.Health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/imports", h.CreateImport)
		r.Get("/imports", h.ListImports)
		r.Get("/imports/failures", h.ListFailures)
		r.Post("/imports/process", h.ProcessNext)
		r.Get("/imports/{id}", h.GetImport)
		r.Post("/imports/{id}/retry", h.RetryImport)
		r.Get("/queue/stats", h.QueueStats)
	})
}

type healthReply struct {
	Status string `json:"status"`
}

func (hr healthReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, healthReply{Status: "ok"})
}
