// Package worker runs the job-processing loops: dequeue an id, mark it
// processing, run the pipeline, record the terminal status. One job fully
// occupies one loop for its duration; parallelism comes from running
// several independent loops.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/engine"
	"github.com/kavon2323/vitaius-vestra/internal/job"
	"github.com/kavon2323/vitaius-vestra/internal/jobstore"
)

const defaultDequeueTimeout = 5 * time.Second

// Config holds worker configuration. All collaborators are injected.
type Config struct {
	Logger      *slog.Logger
	Jobs        *jobstore.Store
	Artifacts   artifact.Store
	Engine      engine.Runner
	Concurrency int

	// DequeueTimeout bounds each blocking pop so the loop can observe
	// shutdown between jobs. It has no bearing on job semantics.
	DequeueTimeout time.Duration

	// WorkDir hosts per-job scoped temp directories. Empty means the
	// system temp dir.
	WorkDir string

	// OutputPrefix namespaces produced artifact keys: <prefix>/<job_id>/<name>.
	OutputPrefix string

	// EngineTimeout bounds one engine invocation. Zero disables the
	// deadline entirely.
	EngineTimeout time.Duration

	// Transfer retry policy for artifact downloads/uploads.
	TransferRetryAttempts     int
	TransferRetryInterval     time.Duration
	TransferBackoffMultiplier float64
}

// Worker owns N processing loops sharing one dispatch queue.
type Worker struct {
	logger         *slog.Logger
	jobs           *jobstore.Store
	artifacts      artifact.Store
	engine         engine.Runner
	concurrency    int
	dequeueTimeout time.Duration
	workDir        string
	outputPrefix   string
	engineTimeout  time.Duration
	retryAttempts  int
	retryInterval  time.Duration
	backoffMult    float64
	wg             sync.WaitGroup
	stopChan       chan struct{}
}

// NewWorker creates a worker instance.
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = defaultDequeueTimeout
	}

	return &Worker{
		logger:         cfg.Logger,
		jobs:           cfg.Jobs,
		artifacts:      cfg.Artifacts,
		engine:         cfg.Engine,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		workDir:        cfg.WorkDir,
		outputPrefix:   cfg.OutputPrefix,
		engineTimeout:  cfg.EngineTimeout,
		retryAttempts:  cfg.TransferRetryAttempts,
		retryInterval:  cfg.TransferRetryInterval,
		backoffMult:    cfg.TransferBackoffMultiplier,
		stopChan:       make(chan struct{}),
	}
}

// Start spawns the processing loops and returns.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("dequeue_timeout", w.dequeueTimeout),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Stop signals all loops and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

func (w *Worker) loop(ctx context.Context, num int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.Int("loop", num))
	logger.Info("Worker loop started")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Worker loop stopping - stop requested")
			return
		case <-ctx.Done():
			logger.Info("Worker loop stopping - context canceled")
			return
		default:
		}

		id, err := w.jobs.Dequeue(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("Dequeue failed",
				slog.Any("error", err),
			)
			time.Sleep(time.Second)
			continue
		}
		if id == "" {
			continue
		}

		w.processOne(ctx, logger, id)
	}
}

// processOne drives one job through the state machine. No error or panic
// escapes into the loop: every failure either lands in the job record or
// is swallowed and logged.
func (w *Worker) processOne(ctx context.Context, logger *slog.Logger, id string) {
	logger = logger.With(slog.String("job_id", id))

	// Terminal status writes must land even when shutdown cancels ctx
	// mid-job, otherwise the record strands in processing on every restart.
	writeCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while processing job",
				slog.Any("panic", r),
			)
			w.markFailed(writeCtx, logger, id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	j, err := w.jobs.Get(writeCtx, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			// Dequeued an id with no record. Nothing to update.
			logger.Warn("Dequeued unknown job id, skipping")
			return
		}
		logger.Error("Failed to read job record",
			slog.Any("error", err),
		)
		return
	}

	// Visible before any I/O begins, so a crash mid-job shows as
	// stuck-in-processing rather than silently reverting to queued.
	if err := w.jobs.MarkProcessing(writeCtx, id); err != nil {
		logger.Error("Failed to mark job processing",
			slog.Any("error", err),
		)
		return
	}

	logger.Info("Processing job",
		slog.String("input_key", j.InputKey),
		slog.String("axis", string(j.Params.Axis)),
	)

	outputs, err := w.runPipeline(ctx, logger, j)
	if err != nil {
		logger.Error("Job failed",
			slog.Any("error", err),
		)
		w.markFailed(writeCtx, logger, id, err.Error())
		return
	}

	if err := w.jobs.MarkDone(writeCtx, id, outputs); err != nil {
		// Outputs are durably stored but the status write failed; the
		// record stays in processing for manual recovery.
		logger.Error("Failed to mark job done",
			slog.Any("error", err),
		)
		return
	}

	logger.Info("Job completed",
		slog.String("prosthetic_key", outputs[job.RoleProsthetic]),
		slog.String("mold_key", outputs[job.RoleMold]),
	)
}

// markFailed records a failure, swallowing secondary errors so the loop
// survives a broken status write.
func (w *Worker) markFailed(ctx context.Context, logger *slog.Logger, id, message string) {
	if err := w.jobs.MarkFailed(ctx, id, message); err != nil {
		logger.Error("Failed to mark job failed",
			slog.Any("error", err),
		)
	}
}
