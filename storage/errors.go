package storage

import "errors"

// Sentinel errors shared by every backend. Backends wrap them with %w so
// callers can test with errors.Is across process boundaries (see grpccas).
var (
	// ErrNotFound: no payload is stored under the CID.
	ErrNotFound = errors.New("payload store: not found")
	// ErrInvalidCID: the CID is undefined or not CIDv1 raw sha2-256.
	ErrInvalidCID = errors.New("payload store: invalid cid")
	// ErrCIDMismatch: the bytes read do not hash to the requested CID.
	ErrCIDMismatch = errors.New("payload store: content does not match cid")
	// ErrImmutable: an existing object was found altered on write.
	ErrImmutable = errors.New("payload store: stored object was modified")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
