package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// Worker runs queued jobs on a bounded goroutine pool so one slow job never
// stalls another's.
type Worker struct {
	log         *logger.Logger
	runner      *Runner
	queue       chan uuid.UUID
	concurrency int
}

func NewWorker(log *logger.Logger, runner *Runner) (*Worker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner required")
	}
	concurrency := envutil.Int("PIPELINE_WORKERS", 4)
	if concurrency <= 0 {
		concurrency = 4
	}
	queueSize := envutil.Int("PIPELINE_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{
		log:         log.With("component", "PipelineWorker"),
		runner:      runner,
		queue:       make(chan uuid.UUID, queueSize),
		concurrency: concurrency,
	}, nil
}

func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		go w.loop(ctx)
	}
	w.log.Info("pipeline workers started", "concurrency", w.concurrency)
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-w.queue:
			w.runOne(ctx, jobID)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, jobID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job run panic", "job_id", jobID, "panic", r)
		}
	}()
	w.runner.Run(ctx, jobID)
}

// Enqueue hands a pending job to the pool. A full queue is reported to the
// caller rather than blocking the request path.
func (w *Worker) Enqueue(jobID uuid.UUID) error {
	select {
	case w.queue <- jobID:
		return nil
	default:
		return fmt.Errorf("pipeline queue full")
	}
}
