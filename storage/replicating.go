package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/ans104/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes stream the input once to every backend
// concurrently and require all returned CIDs to match the CID of the bytes
// read (otherwise ErrCIDMismatch is returned).
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes r to all backends.
//
// It returns the canonical CID (computed from the bytes read) and a map of
// backend name to returned CID.
func (r ReplicatingCAS) PutAll(ctx context.Context, src io.Reader) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	got := make([]cid.Cid, len(r.Backends))
	writers := make([]io.Writer, 0, len(r.Backends)+1)
	pipes := make([]*io.PipeWriter, 0, len(r.Backends))
	for i, b := range r.Backends {
		pr, pw := io.Pipe()
		pipes = append(pipes, pw)
		writers = append(writers, pw)
		g.Go(func() error {
			id, err := b.CAS.Put(gctx, pr)
			// Unblock the copier if the backend stopped reading early.
			pr.CloseWithError(err)
			if err != nil {
				return fmt.Errorf("backend %s: %w", b.Name, err)
			}
			got[i] = id
			return nil
		})
	}
	h := cidutil.NewHasher()
	writers = append(writers, h)

	_, copyErr := io.Copy(io.MultiWriter(writers...), src)
	for _, pw := range pipes {
		pw.CloseWithError(copyErr)
	}
	if err := g.Wait(); err != nil {
		return cid.Undef, nil, err
	}
	if copyErr != nil {
		return cid.Undef, nil, copyErr
	}

	want, err := h.CID()
	if err != nil {
		return cid.Undef, nil, err
	}
	out := make(map[string]cid.Cid, len(r.Backends))
	for i, b := range r.Backends {
		out[b.Name] = got[i]
		if !got[i].Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, src io.Reader) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, src)
	return id, err
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		rc, err := b.CAS.Get(ctx, id)
		if err == nil {
			return rc, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(ctx, id) {
			return true
		}
	}
	return false
}
