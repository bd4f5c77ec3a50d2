package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: the row does not exist
//   - ErrConflict: the transaction lost a race (serialization failure, deadlock
//     or a stale version) and may succeed if run again
//   - ErrDuplicate: a unique constraint rejected the write
//   - ErrUnavailable: the backing store cannot be reached
//   - ErrInvalidInput: the caller supplied values a service rejects
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDuplicate    = errors.New("duplicate")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
