package warrant

import "errors"

var (
	// Backend errors.
	ErrNoBackend   = errors.New("warrant: no backend configured or reachable")
	ErrUnavailable = errors.New("warrant: backend unavailable")

	// Not found errors.
	ErrTaskNotFound   = errors.New("warrant: task not found")
	ErrLeaseNotFound  = errors.New("warrant: lease not found")
	ErrResultNotFound = errors.New("warrant: result not found")

	// Conflict errors.
	ErrNotLeaseHolder = errors.New("warrant: worker is not the lease holder")
	ErrTaskExists     = errors.New("warrant: task already exists")

	// Validation errors.
	ErrInvalidPriority = errors.New("warrant: invalid priority")
	ErrEmptyWorkerID   = errors.New("warrant: worker id must not be empty")
)
