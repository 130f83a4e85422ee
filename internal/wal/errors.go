package wal

import "errors"

// Sentinel error kinds surfaced to callers, per the error handling table:
// Io and Corrupted are returned from write/restore paths. errors.Is unwraps through the
// fmt.Errorf("%w", ...) wrapping used throughout this package.
var (
	// ErrIO wraps a failed OS primitive (open/read/write/lseek/ftruncate/fsync).
	ErrIO = errors.New("wal: io error")

	// ErrCorrupted marks a record that failed signature/checksum/length
	// validation and could not be resynchronized past.
	ErrCorrupted = errors.New("wal: corrupted record")

	// ErrOutOfMemory is the kind for a failed allocation during payload
	// migration. migrateSubmitPayload allocates with make, which has no
	// failure return, so no function in this package returns it.
	ErrOutOfMemory = errors.New("wal: out of memory")

	// ErrStopped names the stopped state of an instance. No function in
	// this package returns it: Renew on a stopped instance returns nil.
	ErrStopped = errors.New("wal: instance stopped")
)
