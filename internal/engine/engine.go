// Package engine invokes the external geometry engine (headless Blender)
// that performs the actual mesh transforms. The engine is opaque to the
// pipeline: a fixed flag contract in, two STL files out, exit code 0 on
// success.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kavon2323/vitaius-vestra/internal/job"
)

// maxOutputBytes bounds the captured process output kept for diagnostics.
const maxOutputBytes = 8 * 1024

// TransformRequest carries one engine invocation's arguments.
type TransformRequest struct {
	InputPath      string
	Axis           job.Axis
	BaseOffsetMM   float64
	MoldPaddingMM  float64
	ChestWallPath  string // optional reference mesh for base fitting
	ProstheticPath string
	MoldPath       string
}

// Runner abstracts the engine invocation so the worker can be tested
// without a real engine binary.
type Runner interface {
	Transform(ctx context.Context, req TransformRequest) error
}

// ExitError reports a non-zero engine exit with its captured output.
type ExitError struct {
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, e.Output)
}

// BlenderRunner runs the engine as "<bin> -b -P <script> -- <flags>".
type BlenderRunner struct {
	Bin    string
	Script string
	Logger *slog.Logger
}

// NewBlenderRunner creates a runner for the given binary and process script.
func NewBlenderRunner(bin, script string, logger *slog.Logger) *BlenderRunner {
	return &BlenderRunner{Bin: bin, Script: script, Logger: logger}
}

// Transform runs one engine invocation and waits for completion. The
// caller bounds the run through ctx; cancellation kills the process.
func (r *BlenderRunner) Transform(ctx context.Context, req TransformRequest) error {
	args := []string{
		"-b", "-P", r.Script, "--",
		"--input", req.InputPath,
		"--axis", string(req.Axis),
		"--base_offset_mm", strconv.FormatFloat(req.BaseOffsetMM, 'f', -1, 64),
		"--mold_padding_mm", strconv.FormatFloat(req.MoldPaddingMM, 'f', -1, 64),
		"--out_prosthetic", req.ProstheticPath,
		"--out_mold", req.MoldPath,
	}
	if req.ChestWallPath != "" {
		args = append(args, "--chest_wall", req.ChestWallPath)
	}

	r.Logger.Info("Invoking geometry engine",
		slog.String("bin", r.Bin),
		slog.String("script", r.Script),
		slog.String("input", req.InputPath),
		slog.String("axis", string(req.Axis)),
	)

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	out, err := cmd.CombinedOutput()
	output := truncateOutput(out)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("engine run exceeded deadline: %s", output)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{ExitCode: exitErr.ExitCode(), Output: output}
		}
		return fmt.Errorf("failed to run engine: %w", err)
	}

	// Exit 0 with a missing output file still breaks the contract.
	for _, path := range []string{req.ProstheticPath, req.MoldPath} {
		if _, statErr := os.Stat(path); statErr != nil {
			return fmt.Errorf("engine exited 0 but output %s is missing: %s", path, output)
		}
	}

	r.Logger.Info("Geometry engine finished",
		slog.String("prosthetic", req.ProstheticPath),
		slog.String("mold", req.MoldPath),
	)
	return nil
}

// truncateOutput keeps the tail of the process output, where engine
// failures report their cause.
func truncateOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputBytes {
		s = "…" + s[len(s)-maxOutputBytes:]
	}
	return s
}
