package worker

import (
	"context"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/service"
	"github.com/nightgrid/event-pipeline/internal/store"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
)

// Worker polls the import queue and feeds claimed jobs to the pipeline.
// Several workers can share one queue without coordination; mutual exclusion
// lives entirely in the store's claim.
type Worker struct {
	store    store.Store
	pipeline *service.Pipeline
	cfg      *config.Config
	log      *zap.SugaredLogger
}

func New(s store.Store, pipeline *service.Pipeline, cfg *config.Config) *Worker {
	return &Worker{
		store:    s,
		pipeline: pipeline,
		cfg:      cfg,
		log:      zap.S().Named("worker"),
	}
}

// Run starts the poll loops and the recovery sweep and blocks until the
// context is canceled and every loop has drained.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infow("starting workers", "count", w.cfg.Pipeline.WorkerCount, "poll_interval", w.cfg.Pipeline.PollInterval)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Pipeline.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.poll(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweep(ctx)
	}()

	wg.Wait()
	w.log.Info("workers stopped")
	return nil
}

// poll drains the queue, then sleeps one jittered interval before looking
// again. The jitter spreads wakeups so a fleet polling at the same interval
// does not stampede the claim query.
func (w *Worker) poll(ctx context.Context, id int) {
	ticker := jitterbug.New(w.cfg.Pipeline.PollInterval, &jitterbug.Norm{Stdev: 500 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		w.drain(ctx, id)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain processes jobs back to back until the queue runs dry.
func (w *Worker) drain(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.pipeline.ProcessNext(ctx)
		if err != nil {
			w.log.Errorw("claiming next job", "worker", id, "error", err)
			return
		}
		if job == nil {
			return
		}
		w.log.Debugw("job settled", "worker", id, "job", job.ID, "status", job.Status)
		w.updateQueueDepth(ctx)
	}
}

// sweep periodically returns jobs stuck in processing past the stall window
// back to pending, recovering work lost to crashed workers.
func (w *Worker) sweep(ctx context.Context) {
	ticker := jitterbug.New(w.cfg.Pipeline.SweepInterval, &jitterbug.Norm{Stdev: time.Second, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reset, err := w.store.Job().ResetStalled(ctx, w.cfg.Pipeline.StallWindow)
		if err != nil {
			w.log.Errorw("resetting stalled jobs", "error", err)
			continue
		}
		if reset > 0 {
			metrics.AddStalledJobsResetMetric(reset)
			w.log.Warnw("returned stalled jobs to the queue", "count", reset)
		}
		w.updateQueueDepth(ctx)
	}
}

func (w *Worker) updateQueueDepth(ctx context.Context) {
	stats, err := w.store.Job().Stats(ctx)
	if err != nil {
		w.log.Warnw("reading queue stats", "error", err)
		return
	}
	metrics.UpdateQueueDepthMetric("pending", stats.Pending)
	metrics.UpdateQueueDepthMetric("processing", stats.Processing)
	metrics.UpdateQueueDepthMetric("completed", stats.Completed)
	metrics.UpdateQueueDepthMetric("failed", stats.Failed)
}
