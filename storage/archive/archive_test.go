package archive_test

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/archive"
	"xdao.co/ans104/storage/localfs"
)

func newStore(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return cas
}

func put(t *testing.T, cas storage.CAS, s string) cid.Cid {
	t.Helper()
	id, err := cas.Put(context.Background(), bytes.NewReader([]byte(s)))
	require.NoError(t, err)
	return id
}

func TestExport_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas := newStore(t)
	id1 := put(t, cas, "hello")
	id2 := put(t, cas, "world")
	opts := archive.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"b.txt": id2, "a.txt": id1}}

	var a, b bytes.Buffer
	require.NoError(t, archive.Export(ctx, &a, cas, []cid.Cid{id1, id2}, opts))
	require.NoError(t, archive.Export(ctx, &b, cas, []cid.Cid{id2, id1, id2}, opts))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestImport_RoundTripWithLabels(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	id1 := put(t, src, "payload one")
	id2 := put(t, src, "payload two")

	var buf bytes.Buffer
	require.NoError(t, archive.Export(ctx, &buf, src, []cid.Cid{id1, id2}, archive.ExportOptions{
		IncludeIndex: true,
		Labels:       map[string]cid.Cid{"item-1": id1},
	}))

	dst := newStore(t)
	labels, err := archive.Import(ctx, &buf, dst, archive.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]cid.Cid{"item-1": id1}, labels)

	got, err := storage.ReadAll(ctx, dst, id2)
	require.NoError(t, err)
	assert.Equal(t, "payload two", string(got))
}

func TestImport_RejectsCIDMismatch(t *testing.T) {
	id, err := cidutil.CIDv1RawSHA256CID([]byte("expected"))
	require.NoError(t, err)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("different")
	require.NoError(t, archive.WriteFile(tw, "blocks/"+id.String(), int64(len(content)), bytes.NewReader(content)))
	require.NoError(t, tw.Close())

	_, err = archive.Import(context.Background(), &buf, newStore(t), archive.ImportOptions{})
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestImport_UnknownEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, archive.WriteFile(tw, "notes.txt", 2, bytes.NewReader([]byte("hi"))))
	require.NoError(t, tw.Close())
	data := buf.Bytes()

	_, err := archive.Import(context.Background(), bytes.NewReader(data), newStore(t), archive.ImportOptions{})
	require.Error(t, err)

	_, err = archive.Import(context.Background(), bytes.NewReader(data), newStore(t), archive.ImportOptions{IgnoreUnknown: true})
	require.NoError(t, err)
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"blocks/x":      "blocks/x",
		"./blocks/x":    "blocks/x",
		"/abs":          "abs",
		`a\b`:           "a/b",
		"../escape":     "",
		"a/../b":        "",
		"a//b":          "",
		"":              "",
		"  index.json ": "index.json",
	}
	for in, want := range cases {
		assert.Equal(t, want, archive.CleanPath(in), "input %q", in)
	}
}

func TestLabels_RoundTrip(t *testing.T) {
	cas := newStore(t)
	labels := map[string]cid.Cid{"b": put(t, cas, "b"), "a": put(t, cas, "a")}

	var buf bytes.Buffer
	require.NoError(t, archive.WriteLabels(&buf, labels))
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"a"`)), bytes.Index(buf.Bytes(), []byte(`"b"`)))

	got, err := archive.ReadLabels(&buf)
	require.NoError(t, err)
	assert.Equal(t, labels, got)

	_, err = archive.ReadLabels(bytes.NewReader([]byte(`{"version":2,"labels":[]}`)))
	require.Error(t, err)
}

func TestExport_CompressedRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	big := bytes.Repeat([]byte("compressible "), 20000)
	id, err := src.Put(ctx, bytes.NewReader(big))
	require.NoError(t, err)

	var plain, comp bytes.Buffer
	opts := archive.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"big": id}}
	require.NoError(t, archive.Export(ctx, &plain, src, nil, opts))
	opts.Compress = true
	require.NoError(t, archive.Export(ctx, &comp, src, nil, opts))
	assert.Less(t, comp.Len(), plain.Len())

	dst := newStore(t)
	labels, err := archive.Import(ctx, &comp, dst, archive.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, id, labels["big"])
	got, err := storage.ReadAll(ctx, dst, id)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestExport_MissingBlock(t *testing.T) {
	id, err := cidutil.CIDv1RawSHA256CID([]byte("absent"))
	require.NoError(t, err)
	var buf bytes.Buffer
	err = archive.Export(context.Background(), &buf, newStore(t), []cid.Cid{id}, archive.ExportOptions{})
	require.ErrorIs(t, err, storage.ErrNotFound)
}
