package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ans104/scheme"
)

func testSeed(b byte) []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b + byte(i)
	}
	return seed
}

func verifyWith(t *testing.T, s Signer, msg []byte) {
	t.Helper()
	sig, err := s.Sign(msg)
	require.NoError(t, err)

	sch, ok := scheme.Lookup(s.Type())
	require.True(t, ok)
	require.Len(t, s.PublicKey(), sch.PublicKeyLength)
	require.Len(t, sig, sch.SignatureLength)
	require.NoError(t, sch.Verify(s.PublicKey(), msg, sig))

	other := append([]byte(nil), msg...)
	other[0] ^= 0xff
	assert.ErrorIs(t, sch.Verify(s.PublicKey(), other, sig), scheme.ErrSignatureMismatch)
}

func TestEd25519Signer_Verifies(t *testing.T) {
	s, err := NewEd25519Signer(testSeed(1))
	require.NoError(t, err)
	assert.Equal(t, scheme.ED25519, s.Type())
	verifyWith(t, s, []byte("hello bundle"))
}

func TestSolanaSigner_Verifies(t *testing.T) {
	s, err := NewSolanaSigner(testSeed(2))
	require.NoError(t, err)
	assert.Equal(t, scheme.Solana, s.Type())
	verifyWith(t, s, []byte("hello bundle"))
}

func TestEthereumSigner_Verifies(t *testing.T) {
	s, err := NewEthereumSigner(testSeed(3))
	require.NoError(t, err)
	verifyWith(t, s, []byte("hello bundle"))

	sig, err := s.Sign([]byte("x"))
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])
}

func TestArweaveSigner_Verifies(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit key generation")
	}
	priv, err := rsa.GenerateKey(rand.Reader, 4096)
	require.NoError(t, err)
	s, err := NewArweaveSigner(priv)
	require.NoError(t, err)
	verifyWith(t, s, []byte("hello bundle"))
}

func TestArweaveSigner_RejectsSmallKeys(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = NewArweaveSigner(priv)
	require.Error(t, err)
}

func TestEd25519Signer_RejectsBadSeed(t *testing.T) {
	_, err := NewEd25519Signer(make([]byte, 16))
	require.Error(t, err)
}
