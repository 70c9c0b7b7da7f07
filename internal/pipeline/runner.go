package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/extract"
	"github.com/studymill/studymill-backend/internal/media"
	"github.com/studymill/studymill-backend/internal/observability"
	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/progress"
	"github.com/studymill/studymill-backend/internal/repos"
	"github.com/studymill/studymill-backend/internal/storage"
	"github.com/studymill/studymill-backend/internal/structurer"
	"github.com/studymill/studymill-backend/internal/transcribe"
)

// Stage progress bands. Progress resets to the band's floor on stage entry
// and only increases within the band.
const (
	progressProcessingStart = 0.05
	progressProcessingEnd   = 0.75
	progressStructuringEnd  = 0.98
)

// Runner owns one job record for the duration of a run: it is the only
// component that mutates job status, and it drives every stage of the
// pipeline.
type Runner struct {
	log         *logger.Logger
	jobs        repos.JobRepo
	store       storage.ObjectStore
	normalizer  media.Normalizer
	transcriber transcribe.Transcriber
	docs        *extract.DocumentPipeline
	structurer  structurer.Structurer
	sink        progress.Sink

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

type RunnerDeps struct {
	Jobs        repos.JobRepo
	Store       storage.ObjectStore
	Normalizer  media.Normalizer
	Transcriber transcribe.Transcriber
	Docs        *extract.DocumentPipeline
	Structurer  structurer.Structurer
	Sink        progress.Sink
}

func NewRunner(log *logger.Logger, deps RunnerDeps) (*Runner, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Jobs == nil || deps.Store == nil {
		return nil, fmt.Errorf("job repo and object store required")
	}
	if deps.Normalizer == nil || deps.Transcriber == nil || deps.Docs == nil || deps.Structurer == nil {
		return nil, fmt.Errorf("pipeline stages required")
	}
	sink := deps.Sink
	if sink == nil {
		sink = progress.NopSink{}
	}
	return &Runner{
		log:         log.With("service", "PipelineRunner"),
		jobs:        deps.Jobs,
		store:       deps.Store,
		normalizer:  deps.Normalizer,
		transcriber: deps.Transcriber,
		docs:        deps.Docs,
		structurer:  deps.Structurer,
		sink:        sink,
		cancels:     make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

// Cancel stops a pending or processing job. Pending jobs flip straight to
// canceled; running jobs get their context canceled and the runner resolves
// the terminal state.
func (r *Runner) Cancel(ctx context.Context, jobID uuid.UUID) error {
	ctx = ctxutil.Default(ctx)

	r.mu.Lock()
	cancel, running := r.cancels[jobID]
	r.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	job, err := r.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if !domain.CanTransition(job.Status, domain.JobCanceled) {
		return fmt.Errorf("job %s cannot be canceled from %s", jobID, job.Status)
	}
	if err := r.jobs.UpdateStatus(ctx, nil, jobID, domain.JobCanceled, job.Progress, nil); err != nil {
		return err
	}
	r.sink.Report(job.OwnerUserID, progress.Event{
		JobID:    jobID,
		Status:   domain.JobCanceled,
		Progress: job.Progress,
		Message:  "job canceled",
	})
	return nil
}

// Run drives one job from pending to a terminal state. It never returns an
// error past its own boundary: failures resolve the job to error or canceled.
func (r *Runner) Run(parent context.Context, jobID uuid.UUID) {
	ctx, cancel := context.WithCancel(ctxutil.Default(parent))
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, jobID)
		r.mu.Unlock()
		cancel()
	}()

	log := r.log.With("job_id", jobID)

	job, err := r.jobs.GetByID(ctx, nil, jobID)
	if err != nil || job == nil {
		log.Error("load job for run", "error", err)
		return
	}
	if job.Status != domain.JobPending {
		log.Warn("job not runnable", "status", job.Status)
		return
	}

	ctx, span := observability.Tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("job.id", jobID.String()),
		attribute.String("job.kind", string(job.SourceKind)),
	))
	defer span.End()

	st := &jobState{runner: r, job: job, progress: job.Progress}

	if err := st.transition(ctx, domain.JobProcessing, progressProcessingStart, "processing started"); err != nil {
		log.Error("enter processing", "error", err)
		return
	}

	ws, err := media.NewWorkspace("studymill-job")
	if err != nil {
		st.fail(err)
		return
	}
	defer ws.Release()

	pctx, pspan := observability.Tracer().Start(ctx, "pipeline.processing")
	rawText, language, err := r.runProcessing(pctx, st, ws, job)
	endStageSpan(pspan, err)
	if err != nil {
		st.resolve(ctx, err)
		return
	}
	if err := r.jobs.UpdateRawText(ctx, nil, job.ID, rawText); err != nil {
		st.fail(fmt.Errorf("persist raw text: %w", err))
		return
	}

	if err := st.transition(ctx, domain.JobStructuring, progressProcessingEnd, "structuring text"); err != nil {
		st.resolve(ctx, err)
		return
	}

	sctx, sspan := observability.Tracer().Start(ctx, "pipeline.structuring")
	res, err := r.structurer.Structure(sctx, rawText, job.OriginalName, language)
	endStageSpan(sspan, err)
	if err != nil {
		st.resolve(ctx, err)
		return
	}
	st.report(ctx, progressStructuringEnd, "structuring complete")

	if err := r.jobs.UpdateStructuredText(ctx, nil, job.ID, res.StructuredText, res.DetectedLanguage); err != nil {
		st.fail(fmt.Errorf("persist structured text: %w", err))
		return
	}

	structuredKey := fmt.Sprintf("jobs/%s/derived/structured.md", job.ID)
	if err := r.store.Put(ctx, structuredKey, strings.NewReader(res.StructuredText), "text/markdown"); err != nil {
		// The DB row already carries the text; a failed derived upload is
		// not worth failing the whole job over.
		log.Warn("upload structured artifact", "key", structuredKey, "error", err)
	}

	if err := st.transition(ctx, domain.JobCompleted, 1.0, "completed"); err != nil {
		log.Error("enter completed", "error", err)
	}
}

func endStageSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

// runProcessing covers the 0.05-0.75 progress band: download, then either
// the audio path or the document path.
func (r *Runner) runProcessing(ctx context.Context, st *jobState, ws *media.Workspace, job *domain.Job) (string, string, error) {
	inputPath, data, err := r.fetchOriginal(ctx, ws, job)
	if err != nil {
		return "", "", err
	}
	st.report(ctx, 0.1, "upload fetched")

	band := func(frac float64) float64 {
		return 0.1 + frac*(progressProcessingEnd-0.1)
	}

	if job.SourceKind.IsMedia() {
		normalized, err := r.normalizer.Normalize(ctx, ws, inputPath, job.OriginalName)
		if err != nil {
			return "", "", err
		}
		st.report(ctx, band(0.25), fmt.Sprintf("audio normalized into %d chunk(s)", len(normalized.Chunks)))

		result, language, err := r.transcriber.Transcribe(ctx, normalized.Chunks, normalized.TotalDurationSec, job.LanguageHint,
			func(done, total int) {
				frac := 0.25 + 0.75*float64(done)/float64(total)
				st.report(ctx, band(frac), fmt.Sprintf("transcribed %d/%d chunks", done, total))
			})
		if err != nil {
			return "", "", err
		}
		return result.Text, language, nil
	}

	doc, err := r.docs.Process(ctx, ws, data, job.SourceKind, func(frac float64) {
		st.report(ctx, band(frac), "extracting document")
	})
	if err != nil {
		return "", "", err
	}
	if doc.Quality.RecommendedAction == domain.ActionManualReview {
		st.report(ctx, band(1.0), "extraction flagged for manual review")
	}
	return doc.Text, job.LanguageHint, nil
}

// fetchOriginal downloads the uploaded artifact into the workspace. Document
// kinds also get the full bytes since their parsers work in memory.
func (r *Runner) fetchOriginal(ctx context.Context, ws *media.Workspace, job *domain.Job) (string, []byte, error) {
	rc, err := r.store.Get(ctx, job.StorageKey)
	if err != nil {
		return "", nil, fmt.Errorf("fetch original %s: %w", job.StorageKey, err)
	}
	defer rc.Close()

	name := filepath.Base(job.OriginalName)
	if name == "" || name == "." {
		name = "upload"
	}
	path := ws.Path("input", name)
	if _, err := ws.Mkdir("input"); err != nil {
		return "", nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("create input file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return "", nil, fmt.Errorf("download original: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", nil, fmt.Errorf("flush input file: %w", err)
	}

	if job.SourceKind.IsMedia() {
		return path, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read input file: %w", err)
	}
	return path, data, nil
}

// jobState tracks one run's status and monotonic progress.
type jobState struct {
	runner *Runner
	job    *domain.Job

	mu       sync.Mutex
	progress float64
}

// report persists and publishes progress, clamped so it never regresses.
func (s *jobState) report(ctx context.Context, p float64, message string) {
	s.mu.Lock()
	if p < s.progress {
		p = s.progress
	}
	s.progress = p
	status := s.job.Status
	s.mu.Unlock()

	if err := s.runner.jobs.UpdateProgress(ctx, nil, s.job.ID, p); err != nil {
		s.runner.log.Warn("persist progress", "job_id", s.job.ID, "error", err)
	}
	s.runner.sink.Report(s.job.OwnerUserID, progress.Event{
		JobID:    s.job.ID,
		Status:   status,
		Progress: p,
		Message:  message,
	})
}

// transition moves the job to a new state, resetting progress to the stage's
// starting fraction.
func (s *jobState) transition(ctx context.Context, to domain.JobStatus, p float64, message string) error {
	s.mu.Lock()
	from := s.job.Status
	if !domain.CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	s.job.Status = to
	if p > s.progress {
		s.progress = p
	}
	p = s.progress
	s.mu.Unlock()

	if err := s.runner.jobs.UpdateStatus(context.WithoutCancel(ctx), nil, s.job.ID, to, p, nil); err != nil {
		return fmt.Errorf("persist status %s: %w", to, err)
	}
	s.runner.sink.Report(s.job.OwnerUserID, progress.Event{
		JobID:    s.job.ID,
		Status:   to,
		Progress: p,
		Message:  message,
	})
	return nil
}

// resolve maps a stage failure onto the right terminal state: canceled when
// the run's context was canceled, error otherwise.
func (s *jobState) resolve(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		s.cancelTerminal()
		return
	}
	s.fail(err)
}

func (s *jobState) cancelTerminal() {
	s.mu.Lock()
	from := s.job.Status
	s.job.Status = domain.JobCanceled
	p := s.progress
	s.mu.Unlock()

	if !domain.CanTransition(from, domain.JobCanceled) {
		// Cancellation observed past processing (e.g. mid-structuring) still
		// has to land in a terminal state.
		s.mu.Lock()
		s.job.Status = from
		s.mu.Unlock()
		s.fail(fmt.Errorf("job canceled during %s", from))
		return
	}
	// The run context is already canceled; persistence must still happen.
	ctx := context.Background()
	if err := s.runner.jobs.UpdateStatus(ctx, nil, s.job.ID, domain.JobCanceled, p, nil); err != nil {
		s.runner.log.Error("persist canceled status", "job_id", s.job.ID, "error", err)
	}
	s.runner.sink.Report(s.job.OwnerUserID, progress.Event{
		JobID:    s.job.ID,
		Status:   domain.JobCanceled,
		Progress: p,
		Message:  "job canceled",
	})
}

func (s *jobState) fail(err error) {
	s.mu.Lock()
	from := s.job.Status
	s.job.Status = domain.JobError
	p := s.progress
	s.mu.Unlock()

	if !domain.CanTransition(from, domain.JobError) {
		s.runner.log.Error("failure after terminal state", "job_id", s.job.ID, "from", from, "error", err)
		return
	}
	msg := userFacingError(err)
	ctx := context.Background()
	if uerr := s.runner.jobs.UpdateStatus(ctx, nil, s.job.ID, domain.JobError, p, &msg); uerr != nil {
		s.runner.log.Error("persist error status", "job_id", s.job.ID, "error", uerr)
	}
	s.runner.log.Error("job failed", "job_id", s.job.ID, "error", err)
	s.runner.sink.Report(s.job.OwnerUserID, progress.Event{
		JobID:    s.job.ID,
		Status:   domain.JobError,
		Progress: p,
		Message:  msg,
	})
}

// userFacingError trims wrapped detail down to a single readable line.
func userFacingError(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
