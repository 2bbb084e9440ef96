// Package localfs is a filesystem-backed payload store.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/storage"
)

// CAS is a local filesystem-backed content-addressable store.
//
// Objects are stored immutably under <root>/<cid[:2]>/<cid> and keyed strictly
// by CID. Writes stream into a temporary file that is renamed into place once
// the CID is known, so a crash never leaves a partial object under a CID.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, ".tmp"), 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Put(ctx context.Context, r io.Reader) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	tmp, err := os.CreateTemp(filepath.Join(c.root, ".tmp"), "put-*")
	if err != nil {
		return cid.Undef, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := cidutil.NewHasher()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, err
	}
	id, err := h.CID()
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := c.pathFor(id)
	if _, err := os.Stat(path); err == nil {
		// Already present: the stored object must still hash to id.
		if err := c.check(id); err != nil {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return cid.Undef, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return cid.Undef, fmt.Errorf("localfs: storing %s: %w", id, err)
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.VerifyReader(id, f), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) check(id cid.Cid) error {
	f, err := os.Open(c.pathFor(id))
	if err != nil {
		return err
	}
	defer f.Close()
	got, _, err := cidutil.CIDv1RawSHA256Reader(f)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return storage.ErrCIDMismatch
	}
	return nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[:2], s)
}
