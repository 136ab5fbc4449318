package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state. Terminal states absorb:
// no transition leaves them.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether the transition s -> to is allowed:
// queued -> processing -> done | failed.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusDone || to == StatusFailed
	}
	return false
}

// Axis selects the mirror plane for the prosthetic transform.
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
)

// ParseAxis normalizes and validates an axis string.
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToUpper(strings.TrimSpace(s))) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	case AxisZ:
		return AxisZ, nil
	}
	return "", fmt.Errorf("%w: axis must be X, Y, or Z, got %q", ErrInvalidParams, s)
}

// Default job parameters, matching the mobile client's defaults.
const (
	DefaultBaseOffsetMM  = 2.0
	DefaultMoldPaddingMM = 10.0
)

// Params are the fabrication parameters, immutable once the job is queued.
type Params struct {
	Axis          Axis    `json:"axis"`
	BaseOffsetMM  float64 `json:"base_offset_mm"`
	MoldPaddingMM float64 `json:"mold_padding_mm"`
}

// DefaultParams returns the parameter set used when a request omits options.
func DefaultParams() Params {
	return Params{
		Axis:          AxisX,
		BaseOffsetMM:  DefaultBaseOffsetMM,
		MoldPaddingMM: DefaultMoldPaddingMM,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if _, err := ParseAxis(string(p.Axis)); err != nil {
		return err
	}
	if p.BaseOffsetMM < 0 {
		return fmt.Errorf("%w: base_offset_mm must be >= 0, got %v", ErrInvalidParams, p.BaseOffsetMM)
	}
	if p.MoldPaddingMM < 0 {
		return fmt.Errorf("%w: mold_padding_mm must be >= 0, got %v", ErrInvalidParams, p.MoldPaddingMM)
	}
	return nil
}

// Output artifact roles.
const (
	RoleProsthetic = "prosthetic"
	RoleMold       = "mold"
)

// OutputKeys maps an artifact role to its object store key.
// Non-empty if and only if the job reached done.
type OutputKeys map[string]string

// Job is the unit of fabrication work tracked end-to-end.
type Job struct {
	ID         string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	InputKey   string
	Params     Params
	OutputKeys OutputKeys
	Error      string
}

// New builds a queued job record with a fresh id and equal timestamps.
func New(inputKey string, params Params) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New().String(),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		InputKey:  inputKey,
		Params:    params,
	}
}
