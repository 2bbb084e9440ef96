package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir())
		require.NoError(t, err)
		return cas
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir())
	require.NoError(t, err)

	orig := []byte("original")
	id, err := cas.Put(ctx, bytes.NewReader(orig))
	require.NoError(t, err)

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	// Reading to EOF must detect the hash mismatch.
	rc, err := cas.Get(ctx, id)
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
	require.NoError(t, rc.Close())

	// Put must not "repair" or overwrite the corrupted object.
	_, err = cas.Put(ctx, bytes.NewReader(orig))
	require.ErrorIs(t, err, storage.ErrImmutable)

	wantID, err := cidutil.CIDv1RawSHA256CID(orig)
	require.NoError(t, err)
	assert.Equal(t, wantID, id)
}

func TestLocalFS_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	cas, err := New(dir)
	require.NoError(t, err)

	_, err = cas.Put(context.Background(), bytes.NewReader(bytes.Repeat([]byte{7}, 1<<20)))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir + "/.tmp")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
