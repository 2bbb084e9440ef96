package grpccas

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/localfs"
	"xdao.co/ans104/storage/testkit"
)

func startServer(t *testing.T, root string) *Client {
	t.Helper()
	cas, err := localfs.New(root)
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: cas})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	client := NewClient(cc)
	client.Timeout = 10 * time.Second
	return client
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return startServer(t, t.TempDir())
	})
}

func TestGRPCCAS_MultiChunkRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := startServer(t, t.TempDir())

	payload := bytes.Repeat([]byte("chunked payload "), 3*ChunkSize/16+7)
	id, err := client.Put(ctx, bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, cidutil.CIDv1RawSHA256(payload), id.String())
	assert.True(t, client.Has(ctx, id))

	got, err := storage.ReadAll(ctx, client, id)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got), "payload mismatch")
}

func TestGRPCCAS_CorruptedObject(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	client := startServer(t, root)

	id, err := client.Put(ctx, bytes.NewReader([]byte("original")))
	require.NoError(t, err)

	s := id.String()
	path := filepath.Join(root, s[:2], s)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	_, err = storage.ReadAll(ctx, client, id)
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestGRPCCAS_RegistryRequiresTarget(t *testing.T) {
	_, _, err := open(map[string]string{})
	require.Error(t, err)
	_, _, err = open(map[string]string{"target": "127.0.0.1:1", "dial_timeout": "soon"})
	require.Error(t, err)
}
