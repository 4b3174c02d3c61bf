package directory

import "errors"

var (
	ErrNotFound     = errors.New("directory: not found")
	ErrConflict     = errors.New("directory: conflict")
	ErrInvalidInput = errors.New("directory: invalid input")

	// ErrEscalation marks a role escalation a caller is not entitled to,
	// kept distinct from ordinary validation conflicts.
	ErrEscalation = errors.New("directory: role escalation denied")
)
