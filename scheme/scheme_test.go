package scheme

import (
	"testing"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lengths(t *testing.T) {
	cases := []struct {
		typ      Type
		name     string
		pub, sig int
		verifier bool
	}{
		{Arweave, "arweave", 512, 512, true},
		{ED25519, "ed25519", 32, 64, true},
		{Ethereum, "ethereum", 65, 65, true},
		{Solana, "solana", 32, 64, true},
		{InjectedAptos, "injectedAptos", 32, 64, false},
		{MultiAptos, "multiAptos", 1025, 2052, false},
		{TypedEthereum, "typedEthereum", 42, 65, false},
	}
	for _, tc := range cases {
		s, ok := Lookup(tc.typ)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.name, s.Name)
		assert.Equal(t, tc.name, tc.typ.String())
		assert.Equal(t, tc.pub, s.PublicKeyLength, tc.name)
		assert.Equal(t, tc.sig, s.SignatureLength, tc.name)
		assert.Equal(t, tc.verifier, s.CanVerify(), tc.name)
	}
	assert.Len(t, All(), len(cases))
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup(0)
	assert.False(t, ok)
	_, ok = Lookup(99)
	assert.False(t, ok)
	assert.Equal(t, "unknown(99)", Type(99).String())
}

func TestVerify_NoVerifier(t *testing.T) {
	s, _ := Lookup(MultiAptos)
	err := s.Verify(make([]byte, 1025), []byte("m"), make([]byte, 2052))
	assert.ErrorIs(t, err, ErrNoVerifier)
}

func TestVerify_LengthChecks(t *testing.T) {
	s, _ := Lookup(ED25519)
	require.Error(t, s.Verify(make([]byte, 31), []byte("m"), make([]byte, 64)))
	require.Error(t, s.Verify(make([]byte, 32), []byte("m"), make([]byte, 63)))
}

func TestVerify_Ed25519(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	msg := []byte("deep hash")
	sig := ed25519.Sign(priv, msg)

	s, _ := Lookup(ED25519)
	require.NoError(t, s.Verify(pub, msg, sig))

	sig[0] ^= 1
	assert.ErrorIs(t, s.Verify(pub, msg, sig), ErrSignatureMismatch)
}

func TestVerify_EthereumRejectsBadRecoveryByte(t *testing.T) {
	s, _ := Lookup(Ethereum)
	sig := make([]byte, 65)
	sig[64] = 99
	err := s.Verify(make([]byte, 65), []byte("m"), sig)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSignatureMismatch)
}

func TestEthereumMessageHash_Envelope(t *testing.T) {
	a := EthereumMessageHash([]byte("abc"))
	b := EthereumMessageHash([]byte("abd"))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
