// Package storage defines content-addressed storage for extracted payloads
// and the combinators that fan reads and writes across several backends.
package storage

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"
)

// CAS is a content-addressable payload store.
//
// Contract:
// - Put MUST be idempotent and return the CIDv1 (raw, sha2-256) of the bytes read.
// - Stored objects MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent. The returned reader
//   reports ErrCIDMismatch at EOF if the stored bytes do not hash to id.
type CAS interface {
	Put(ctx context.Context, r io.Reader) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) (io.ReadCloser, error)
	Has(ctx context.Context, id cid.Cid) bool
}

// ReadAll fetches id from c into memory.
func ReadAll(ctx context.Context, c CAS, id cid.Cid) ([]byte, error) {
	rc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
