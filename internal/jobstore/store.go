// Package jobstore persists job records as Redis hashes (job:<id>) and
// orders dispatch through a single Redis list (jobs). The list's atomic
// blocking pop is the system's only mutual-exclusion primitive: an id
// popped by one worker is never delivered to another.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kavon2323/vitaius-vestra/internal/job"
)

const (
	recordPrefix = "job:"
	queueName    = "jobs"
)

// Hash field names of a job record.
const (
	fieldID            = "id"
	fieldStatus        = "status"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
	fieldInputKey      = "input_key"
	fieldAxis          = "axis"
	fieldBaseOffsetMM  = "base_offset_mm"
	fieldMoldPaddingMM = "mold_padding_mm"
	fieldOutProsthetic = "out_prosthetic_key"
	fieldOutMold       = "out_mold_key"
	fieldError         = "error"
)

// Store handles all Redis operations for job records and the dispatch queue.
type Store struct {
	rdb       *redis.Client
	namespace string
	logger    *slog.Logger
}

// New creates a Store. When namespace is non-empty, every key is prefixed
// with "<namespace>:".
func New(rdb *redis.Client, namespace string, logger *slog.Logger) *Store {
	return &Store{
		rdb:       rdb,
		namespace: namespace,
		logger:    logger,
	}
}

func (s *Store) recordKey(id string) string {
	if s.namespace != "" {
		return s.namespace + ":" + recordPrefix + id
	}
	return recordPrefix + id
}

func (s *Store) queueKey() string {
	if s.namespace != "" {
		return s.namespace + ":" + queueName
	}
	return queueName
}

// Create writes the full job record. A second create for the same id fails
// with job.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, j *job.Job) error {
	key := s.recordKey(j.ID)

	claimed, err := s.rdb.HSetNX(ctx, key, fieldID, j.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: %s", job.ErrAlreadyExists, j.ID)
	}

	err = s.rdb.HSet(ctx, key,
		fieldStatus, string(j.Status),
		fieldCreatedAt, j.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt, j.UpdatedAt.UTC().Format(time.RFC3339Nano),
		fieldInputKey, j.InputKey,
		fieldAxis, string(j.Params.Axis),
		fieldBaseOffsetMM, strconv.FormatFloat(j.Params.BaseOffsetMM, 'f', -1, 64),
		fieldMoldPaddingMM, strconv.FormatFloat(j.Params.MoldPaddingMM, 'f', -1, 64),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write job record: %w", err)
	}

	s.logger.Debug("Job record created",
		slog.String("job_id", j.ID),
		slog.String("input_key", j.InputKey),
	)
	return nil
}

// Get reads the job record for id. A missing record fails with job.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", job.ErrNotFound, id)
	}
	return recordToJob(id, fields)
}

func recordToJob(id string, fields map[string]string) (*job.Job, error) {
	status := job.Status(fields[fieldStatus])
	if !status.Valid() {
		return nil, fmt.Errorf("malformed job record %s: unknown status %q", id, fields[fieldStatus])
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("malformed job record %s: bad created_at: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("malformed job record %s: bad updated_at: %w", id, err)
	}

	baseOffset, err := strconv.ParseFloat(fields[fieldBaseOffsetMM], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed job record %s: bad base_offset_mm: %w", id, err)
	}
	moldPadding, err := strconv.ParseFloat(fields[fieldMoldPaddingMM], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed job record %s: bad mold_padding_mm: %w", id, err)
	}

	j := &job.Job{
		ID:        fields[fieldID],
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		InputKey:  fields[fieldInputKey],
		Params: job.Params{
			Axis:          job.Axis(fields[fieldAxis]),
			BaseOffsetMM:  baseOffset,
			MoldPaddingMM: moldPadding,
		},
		Error: fields[fieldError],
	}

	if fields[fieldOutProsthetic] != "" || fields[fieldOutMold] != "" {
		j.OutputKeys = job.OutputKeys{}
		if fields[fieldOutProsthetic] != "" {
			j.OutputKeys[job.RoleProsthetic] = fields[fieldOutProsthetic]
		}
		if fields[fieldOutMold] != "" {
			j.OutputKeys[job.RoleMold] = fields[fieldOutMold]
		}
	}

	return j, nil
}

// update merges fields into an existing record and refreshes updated_at.
// Field writes are not transactional; a crash between writes can leave a
// partially updated record.
func (s *Store) update(ctx context.Context, id string, pairs ...interface{}) error {
	key := s.recordKey(id)

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check job record: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", job.ErrNotFound, id)
	}

	pairs = append(pairs, fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano))
	if err := s.rdb.HSet(ctx, key, pairs...).Err(); err != nil {
		return fmt.Errorf("failed to update job record: %w", err)
	}
	return nil
}

// transition enforces the state machine at the write boundary.
func (s *Store) transition(ctx context.Context, id string, to job.Status, pairs ...interface{}) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (job %s)", job.ErrInvalidTransition, current.Status, to, id)
	}

	pairs = append(pairs, fieldStatus, string(to))
	if err := s.update(ctx, id, pairs...); err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", id),
		slog.String("status", string(to)),
	)
	return nil
}

// MarkProcessing transitions queued -> processing. Workers call this
// immediately after a successful dequeue, before any artifact I/O, so a
// mid-job crash is visible as stuck-in-processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, job.StatusProcessing)
}

// MarkDone transitions processing -> done and records both output keys.
func (s *Store) MarkDone(ctx context.Context, id string, outputs job.OutputKeys) error {
	prosthetic := outputs[job.RoleProsthetic]
	mold := outputs[job.RoleMold]
	if prosthetic == "" || mold == "" {
		return fmt.Errorf("done requires both output keys, got prosthetic=%q mold=%q", prosthetic, mold)
	}
	return s.transition(ctx, id, job.StatusDone,
		fieldOutProsthetic, prosthetic,
		fieldOutMold, mold,
		fieldError, "",
	)
}

// MarkFailed transitions processing -> failed with a non-empty error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	if message == "" {
		return errors.New("failed status requires an error message")
	}
	return s.transition(ctx, id, job.StatusFailed, fieldError, message)
}

// Enqueue appends id to the tail of the dispatch queue (FIFO).
func (s *Store) Enqueue(ctx context.Context, id string) error {
	if err := s.rdb.RPush(ctx, s.queueKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", id, err)
	}

	s.logger.Debug("Job enqueued",
		slog.String("job_id", id),
	)
	return nil
}

// Dequeue blocks up to timeout for an id at the head of the queue. It
// returns ("", nil) when the timeout elapses with no work. The pop is
// atomic: no two workers receive the same id.
func (s *Store) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	vals, err := s.rdb.BLPop(ctx, timeout, s.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to dequeue: %w", err)
	}
	// BLPOP replies [queue, value].
	return vals[1], nil
}
