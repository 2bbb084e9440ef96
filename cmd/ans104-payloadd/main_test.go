package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/grpccas"
	"xdao.co/ans104/storage/localfs"
)

func TestRun_ListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--list-backends"}, &out, &errOut)
	require.Equal(t, 0, code)
	assert.Contains(t, out.String(), "localfs\t")
	assert.NotContains(t, out.String(), "grpc\t")
}

func TestRun_RejectsBadBackendConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--backend", "localfs", "--opt", "bogus=1"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "bogus")

	errOut.Reset()
	code = run(context.Background(), []string{"--backend", "nope"}, &out, &errOut)
	assert.Equal(t, 2, code)
}

func TestServe_RoundTripAndShutdown(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() { done <- serve(ctx, lis, &grpccas.Server{CAS: cas, Logger: log}, log) }()

	cc, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client := grpccas.NewClient(cc)
	defer client.Close()

	id, err := client.Put(context.Background(), strings.NewReader("payload"))
	require.NoError(t, err)
	got, err := storage.ReadAll(context.Background(), client, id)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	cancel()
	require.NoError(t, <-done)
}
