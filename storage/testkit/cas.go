// Package testkit holds the conformance suite every storage.CAS backend runs.
package testkit

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, payload storage")

		id, err := cas.Put(ctx, bytes.NewReader(want))
		require.NoError(t, err)
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		require.NoError(t, err)
		assert.Equal(t, wantID, id)

		got, err := storage.ReadAll(ctx, cas, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("LargePayload", func(t *testing.T) {
		cas := newCAS(t)
		want := bytes.Repeat([]byte("0123456789abcdef"), 64<<10)

		id, err := cas.Put(ctx, bytes.NewReader(want))
		require.NoError(t, err)
		got, err := storage.ReadAll(ctx, cas, id)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got), "payload mismatch")
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		cas := newCAS(t)
		id, err := cas.Put(ctx, bytes.NewReader(nil))
		require.NoError(t, err)
		got, err := storage.ReadAll(ctx, cas, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, bytes.NewReader(b))
		require.NoError(t, err)
		id2, err := cas.Put(ctx, bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, id1, id2)
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		require.NoError(t, err)

		assert.False(t, cas.Has(ctx, id))
		_, err = cas.Get(ctx, id)
		assert.True(t, storage.IsNotFound(err), "Get missing: got err=%v want ErrNotFound", err)

		_, err = cas.Put(ctx, bytes.NewReader(b))
		require.NoError(t, err)
		assert.True(t, cas.Has(ctx, id))
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		assert.False(t, cas.Has(ctx, undef))
		_, err := cas.Get(ctx, undef)
		assert.Error(t, err)
	})

	t.Run("ReaderError", func(t *testing.T) {
		cas := newCAS(t)
		_, err := cas.Put(ctx, io.MultiReader(bytes.NewReader([]byte("partial")), errReader{}))
		assert.Error(t, err)
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
