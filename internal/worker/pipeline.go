package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/engine"
	"github.com/kavon2323/vitaius-vestra/internal/job"
	"github.com/kavon2323/vitaius-vestra/internal/stl"
)

// TransferError wraps an artifact transfer failure. Transfers are the
// retryable step of the pipeline.
type TransferError struct {
	Op  string // "download" or "upload"
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s of %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// runPipeline executes the per-job processing sequence: download input,
// validate it, invoke the engine, collect and upload both outputs. There
// is no partial success: an error anywhere means no output keys.
func (w *Worker) runPipeline(ctx context.Context, logger *slog.Logger, j *job.Job) (job.OutputKeys, error) {
	tmpDir, err := os.MkdirTemp(w.workDir, "job-"+j.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			logger.Warn("Failed to remove working directory",
				slog.String("dir", tmpDir),
				slog.Any("error", rmErr),
			)
		}
	}()

	// Step 1: download the input scan.
	var data []byte
	err = w.withTransferRetry(ctx, logger, "download", j.InputKey, func() error {
		var getErr error
		data, getErr = w.artifacts.Get(ctx, j.InputKey)
		return getErr
	})
	if err != nil {
		return nil, err
	}

	// Step 2: format-level validation before spending engine time.
	if _, err := stl.Decode(data); err != nil {
		return nil, fmt.Errorf("invalid input mesh %q: %w", j.InputKey, err)
	}

	inputPath := filepath.Join(tmpDir, "input.stl")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to stage input: %w", err)
	}

	// Step 3: engine invocation, bounded when a timeout is configured.
	prostheticPath := filepath.Join(tmpDir, artifact.ProstheticFile)
	moldPath := filepath.Join(tmpDir, artifact.MoldFile)

	engineCtx := ctx
	if w.engineTimeout > 0 {
		var cancel context.CancelFunc
		engineCtx, cancel = context.WithTimeout(ctx, w.engineTimeout)
		defer cancel()
	}

	err = w.engine.Transform(engineCtx, engine.TransformRequest{
		InputPath:      inputPath,
		Axis:           j.Params.Axis,
		BaseOffsetMM:   j.Params.BaseOffsetMM,
		MoldPaddingMM:  j.Params.MoldPaddingMM,
		ProstheticPath: prostheticPath,
		MoldPath:       moldPath,
	})
	if err != nil {
		return nil, err
	}

	// Steps 4-5: canonicalize and upload both outputs.
	outputs := job.OutputKeys{}
	for role, path := range map[string]string{
		job.RoleProsthetic: prostheticPath,
		job.RoleMold:       moldPath,
	} {
		encoded, err := collectOutput(path)
		if err != nil {
			return nil, fmt.Errorf("failed to collect %s output: %w", role, err)
		}

		key := artifact.OutputKey(w.outputPrefix, j.ID, filepath.Base(path))
		err = w.withTransferRetry(ctx, logger, "upload", key, func() error {
			return w.artifacts.Put(ctx, key, encoded)
		})
		if err != nil {
			return nil, err
		}
		outputs[role] = key
	}

	return outputs, nil
}

// collectOutput normalizes one produced file to canonical binary STL.
// Providers are probed in order: a file that already passes binary
// validation is passed through untouched; anything else goes through the
// internal codec and is re-encoded.
func collectOutput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if stl.IsBinary(data) {
		return data, nil
	}

	mesh, err := stl.Decode(data)
	if err != nil {
		return nil, err
	}
	return stl.Encode(mesh)
}

// withTransferRetry runs fn with bounded retry and exponential backoff.
// Exhausted retries surface as a TransferError naming the key.
func (w *Worker) withTransferRetry(ctx context.Context, logger *slog.Logger, op, key string, fn func() error) error {
	attempts := w.retryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	interval := w.retryInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	mult := w.backoffMult
	if mult <= 1 {
		mult = 2.0
	}

	var lastErr error
	delay := interval
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Transfer succeeded after retry",
					slog.String("op", op),
					slog.String("key", key),
					slog.Int("attempt", attempt),
				)
			}
			return nil
		}

		// Missing inputs never heal on retry.
		if op == "download" && isNotFound(lastErr) {
			break
		}

		if attempt < attempts {
			logger.Warn("Transfer failed, retrying",
				slog.String("op", op),
				slog.String("key", key),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.Duration("retry_after", delay),
				slog.Any("error", lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &TransferError{Op: op, Key: key, Err: ctx.Err()}
			}
			delay = time.Duration(float64(delay) * mult)
		}
	}

	return &TransferError{Op: op, Key: key, Err: lastErr}
}

func isNotFound(err error) bool {
	return errors.Is(err, artifact.ErrNotFound)
}
