package worker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavon2323/vitaius-vestra/internal/artifact"
	"github.com/kavon2323/vitaius-vestra/internal/engine"
	"github.com/kavon2323/vitaius-vestra/internal/job"
	"github.com/kavon2323/vitaius-vestra/internal/jobstore"
	"github.com/kavon2323/vitaius-vestra/internal/stl"
)

// stubRunner lets each test script the engine's behavior.
type stubRunner struct {
	mu    sync.Mutex
	calls []engine.TransformRequest
	fn    func(ctx context.Context, req engine.TransformRequest) error
}

func (s *stubRunner) Transform(ctx context.Context, req engine.TransformRequest) error {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.fn(ctx, req)
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// writeOutputs is the well-behaved engine: both outputs appear as binary STL.
func writeOutputs(t *testing.T) func(ctx context.Context, req engine.TransformRequest) error {
	t.Helper()
	return func(_ context.Context, req engine.TransformRequest) error {
		data := sampleSTL(t)
		if err := os.WriteFile(req.ProstheticPath, data, 0o644); err != nil {
			return err
		}
		return os.WriteFile(req.MoldPath, data, 0o644)
	}
}

func sampleSTL(t *testing.T) []byte {
	t.Helper()
	data, err := stl.Encode(&stl.Mesh{
		Vertices:  []stl.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Triangles: []stl.Triangle{{V: [3]int{0, 1, 2}}},
	})
	require.NoError(t, err)
	return data
}

type testEnv struct {
	worker *Worker
	jobs   *jobstore.Store
	store  *artifact.FSStore
	mr     *miniredis.Miniredis
	runner *stubRunner
}

func newTestEnv(t *testing.T, runner *stubRunner) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := jobstore.New(rdb, "", logger)

	store, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)

	w := NewWorker(&Config{
		Logger:         logger,
		Jobs:           jobs,
		Artifacts:      store,
		Engine:         runner,
		Concurrency:    1,
		DequeueTimeout: 50 * time.Millisecond,
		OutputPrefix:   "stl",
	})

	return &testEnv{worker: w, jobs: jobs, store: store, mr: mr, runner: runner}
}

// createJob seeds a queued record and its uploaded input scan.
func (e *testEnv) createJob(t *testing.T, inputData []byte) *job.Job {
	t.Helper()
	ctx := context.Background()

	j := job.New("scans/input.stl", job.DefaultParams())
	require.NoError(t, e.jobs.Create(ctx, j))
	if inputData != nil {
		require.NoError(t, e.store.Put(ctx, j.InputKey, inputData))
	}
	return j
}

func TestProcessOneHappyPath(t *testing.T) {
	runner := &stubRunner{}
	runner.fn = writeOutputs(t)
	env := newTestEnv(t, runner)
	ctx := context.Background()

	j := env.createJob(t, sampleSTL(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.worker.processOne(ctx, logger, j.ID)

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDone, got.Status)
	assert.Empty(t, got.Error)

	wantProsthetic := "stl/" + j.ID + "/prosthetic.stl"
	wantMold := "stl/" + j.ID + "/mold.stl"
	assert.Equal(t, wantProsthetic, got.OutputKeys[job.RoleProsthetic])
	assert.Equal(t, wantMold, got.OutputKeys[job.RoleMold])

	for _, key := range []string{wantProsthetic, wantMold} {
		data, err := env.store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, stl.IsBinary(data))
	}
}

func TestProcessOneMissingInput(t *testing.T) {
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		return nil
	}}
	env := newTestEnv(t, runner)
	ctx := context.Background()

	// Record exists but no artifact was uploaded under its input key.
	j := env.createJob(t, nil)
	env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, j.InputKey)
	assert.Empty(t, got.OutputKeys)

	// The engine never ran.
	assert.Zero(t, runner.callCount())
}

func TestProcessOneMalformedInput(t *testing.T) {
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		return nil
	}}
	env := newTestEnv(t, runner)
	ctx := context.Background()

	j := env.createJob(t, []byte("not a mesh at all"))
	env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "invalid input mesh")
	assert.Zero(t, runner.callCount())
}

func TestProcessOneEngineFailure(t *testing.T) {
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		return &engine.ExitError{ExitCode: 1, Output: "Error: mesh is not manifold"}
	}}
	env := newTestEnv(t, runner)
	ctx := context.Background()

	j := env.createJob(t, sampleSTL(t))
	env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "mesh is not manifold")
	assert.Empty(t, got.OutputKeys)
}

func TestProcessOneEnginePanic(t *testing.T) {
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		panic("index out of range")
	}}
	env := newTestEnv(t, runner)
	ctx := context.Background()

	j := env.createJob(t, sampleSTL(t))
	assert.NotPanics(t, func() {
		env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)
	})

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "internal error")
}

func TestProcessOneUnknownID(t *testing.T) {
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		return nil
	}}
	env := newTestEnv(t, runner)

	assert.NotPanics(t, func() {
		env.worker.processOne(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), "no-such-job")
	})
	assert.Zero(t, runner.callCount())
}

func TestProcessOneSurvivesLostRecord(t *testing.T) {
	// The record vanishes while the engine runs; the terminal status write
	// fails with not-found, is logged, and the loop survives.
	env := newTestEnv(t, nil)
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		env.mr.FlushAll()
		return &engine.ExitError{ExitCode: 1, Output: "interrupted"}
	}}
	env.worker.engine = runner
	env.runner = runner

	j := env.createJob(t, sampleSTL(t))
	assert.NotPanics(t, func() {
		env.worker.processOne(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)
	})
}

func TestProcessOneAsciiOutputCanonicalized(t *testing.T) {
	ascii := []byte(`solid out
vertex 0 0 0
vertex 1 0 0
vertex 0 1 0
endsolid out
`)
	runner := &stubRunner{fn: func(_ context.Context, req engine.TransformRequest) error {
		if err := os.WriteFile(req.ProstheticPath, ascii, 0o644); err != nil {
			return err
		}
		return os.WriteFile(req.MoldPath, ascii, 0o644)
	}}
	env := newTestEnv(t, runner)
	ctx := context.Background()

	j := env.createJob(t, sampleSTL(t))
	env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusDone, got.Status)

	data, err := env.store.Get(ctx, got.OutputKeys[job.RoleProsthetic])
	require.NoError(t, err)
	assert.True(t, stl.IsBinary(data))
	assert.Len(t, data, stl.BinarySize(1))
}

func TestProcessOneWorkDirCleanup(t *testing.T) {
	workDir := t.TempDir()
	runner := &stubRunner{}
	runner.fn = writeOutputs(t)
	env := newTestEnv(t, runner)
	env.worker.workDir = workDir
	ctx := context.Background()

	j := env.createJob(t, sampleSTL(t))
	env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "per-job temp directory should be removed")
}

func TestProcessOneWorkDirCleanupOnFailure(t *testing.T) {
	workDir := t.TempDir()
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		return &engine.ExitError{ExitCode: 1, Output: "boom"}
	}}
	env := newTestEnv(t, runner)
	env.worker.workDir = workDir
	ctx := context.Background()

	j := env.createJob(t, sampleSTL(t))
	env.worker.processOne(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), j.ID)

	got, err := env.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "per-job temp directory should be removed on failure too")
}

func TestWorkerProcessesQueueInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	runner := &stubRunner{fn: func(_ context.Context, req engine.TransformRequest) error {
		// The scoped temp dir is named job-<id>-<suffix>.
		base := filepath.Base(filepath.Dir(req.InputPath))
		id := strings.TrimPrefix(base, "job-")
		if i := strings.LastIndex(id, "-"); i >= 0 {
			id = id[:i]
		}
		mu.Lock()
		order = append(order, id)
		mu.Unlock()

		data := sampleSTL(t)
		if err := os.WriteFile(req.ProstheticPath, data, 0o644); err != nil {
			return err
		}
		return os.WriteFile(req.MoldPath, data, 0o644)
	}}
	env := newTestEnv(t, runner)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		j := env.createJob(t, sampleSTL(t))
		require.NoError(t, env.jobs.Enqueue(ctx, j.ID))
		ids = append(ids, j.ID)
	}

	env.worker.Start(ctx)
	require.Eventually(t, func() bool {
		for _, id := range ids {
			j, err := env.jobs.Get(ctx, id)
			if err != nil || !j.Status.Terminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
	env.worker.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order)

	for _, id := range ids {
		j, err := env.jobs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, job.StatusDone, j.Status)
	}
}

func TestWorkerShutdownRecordsInflightJob(t *testing.T) {
	// Mirrors the services' shutdown order: cancel() kills the in-flight
	// engine run, then Stop() waits. The terminal status write must still
	// land; the record may not strand in processing.
	started := make(chan struct{})
	runner := &stubRunner{fn: func(ctx context.Context, _ engine.TransformRequest) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	env := newTestEnv(t, runner)

	j := env.createJob(t, sampleSTL(t))
	require.NoError(t, env.jobs.Enqueue(context.Background(), j.ID))

	ctx, cancel := context.WithCancel(context.Background())
	env.worker.Start(ctx)

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("engine run never started")
	}

	cancel()
	env.worker.Stop()

	got, err := env.jobs.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Empty(t, got.OutputKeys)
}

func TestWorkerStopWithEmptyQueue(t *testing.T) {
	runner := &stubRunner{fn: func(context.Context, engine.TransformRequest) error {
		return nil
	}}
	env := newTestEnv(t, runner)

	env.worker.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		env.worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWithTransferRetry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("succeeds after transient failures", func(t *testing.T) {
		w := &Worker{
			logger:        logger,
			retryAttempts: 3,
			retryInterval: time.Millisecond,
			backoffMult:   2,
		}

		attempts := 0
		err := w.withTransferRetry(context.Background(), logger, "upload", "k", func() error {
			attempts++
			if attempts < 3 {
				return assert.AnError
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("exhausted retries surface a transfer error", func(t *testing.T) {
		w := &Worker{
			logger:        logger,
			retryAttempts: 2,
			retryInterval: time.Millisecond,
			backoffMult:   2,
		}

		err := w.withTransferRetry(context.Background(), logger, "upload", "stl/x/mold.stl", func() error {
			return assert.AnError
		})
		require.Error(t, err)

		var terr *TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "upload", terr.Op)
		assert.Equal(t, "stl/x/mold.stl", terr.Key)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("missing download is not retried", func(t *testing.T) {
		w := &Worker{
			logger:        logger,
			retryAttempts: 5,
			retryInterval: time.Millisecond,
			backoffMult:   2,
		}

		attempts := 0
		err := w.withTransferRetry(context.Background(), logger, "download", "scans/gone.stl", func() error {
			attempts++
			return artifact.ErrNotFound
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.ErrorIs(t, err, artifact.ErrNotFound)
	})
}
