package job

import "errors"

var (
	// ErrNotFound is returned when a job id does not exist in the store
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyExists is returned when creating a job whose id is already stored
	ErrAlreadyExists = errors.New("job already exists")

	// ErrInvalidTransition is returned when a status write violates the state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidParams is returned when job parameters fail validation
	ErrInvalidParams = errors.New("invalid job parameters")
)
