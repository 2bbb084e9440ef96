package casregistry

import (
	"context"
	"io"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/storage"
)

type nopCAS struct{}

func (nopCAS) Put(context.Context, io.Reader) (cid.Cid, error)     { return cid.Undef, nil }
func (nopCAS) Get(context.Context, cid.Cid) (io.ReadCloser, error) { return nil, storage.ErrNotFound }
func (nopCAS) Has(context.Context, cid.Cid) bool                   { return false }

func TestRegistry(t *testing.T) {
	var got map[string]string
	require.NoError(t, Register(Backend{
		Name:  "test-nop",
		Usage: UsageDaemon,
		Keys:  []string{"path"},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			got = cfg
			return nopCAS{}, nil, nil
		},
	}))

	require.Error(t, Register(Backend{Name: "test-nop", Usage: UsageDaemon, Open: func(map[string]string) (storage.CAS, func() error, error) { return nil, nil, nil }}))
	require.Error(t, Register(Backend{Name: "x", Usage: UsageCLI}))
	require.Error(t, Register(Backend{Name: "y", Open: func(map[string]string) (storage.CAS, func() error, error) { return nil, nil, nil }}))

	assert.Contains(t, Names(UsageDaemon), "test-nop")
	assert.NotContains(t, Names(UsageCLI), "test-nop")

	_, _, err := Open("test-nop", UsageCLI, nil)
	require.Error(t, err)
	_, _, err = Open("test-nop", UsageDaemon, map[string]string{"bogus": "1"})
	require.Error(t, err)
	_, _, err = Open("missing", UsageDaemon, nil)
	require.Error(t, err)

	cas, _, err := Open("test-nop", UsageDaemon, map[string]string{"path": "/x"})
	require.NoError(t, err)
	assert.NotNil(t, cas)
	assert.Equal(t, map[string]string{"path": "/x"}, got)
}
