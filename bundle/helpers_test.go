package bundle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/ans104/keys"
	"xdao.co/ans104/scheme"
)

func testSigner(t *testing.T, b byte) *keys.Ed25519Signer {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b ^ byte(i)
	}
	s, err := keys.NewEd25519Signer(seed)
	require.NoError(t, err)
	return s
}

func makeItem(t *testing.T, s Signer, payload string, tags ...Tag) []byte {
	t.Helper()
	raw, err := CreateItem(s, []byte(payload), ItemOptions{Tags: tags})
	require.NoError(t, err)
	return raw
}

func makeBundle(t *testing.T, items ...[]byte) []byte {
	t.Helper()
	b, err := Assemble(items)
	require.NoError(t, err)
	return b
}

// zeroSigner signs with an all-zero signature for schemes without a verifier.
type zeroSigner struct{ typ scheme.Type }

func (z zeroSigner) Type() scheme.Type { return z.typ }

func (z zeroSigner) PublicKey() []byte {
	s, _ := scheme.Lookup(z.typ)
	return make([]byte, s.PublicKeyLength)
}

func (z zeroSigner) Sign([]byte) ([]byte, error) {
	s, _ := scheme.Lookup(z.typ)
	return make([]byte, s.SignatureLength), nil
}

func requireKind(t *testing.T, err error, kind Kind, rule string) {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	if rule != "" {
		require.Equal(t, rule, e.RuleID, "error: %v", err)
	}
}

func testSolanaSigner(t *testing.T) *keys.Ed25519Signer {
	t.Helper()
	s, err := keys.NewSolanaSigner(make([]byte, 32))
	require.NoError(t, err)
	return s
}

func newTestEthereumSigner() (*keys.EthereumSigner, error) {
	return keys.GenerateEthereumSigner()
}
