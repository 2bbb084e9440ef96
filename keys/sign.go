package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"xdao.co/ans104/scheme"
)

// Signer produces signatures for one scheme. The message is always the deep
// hash signing digest of a data item.
type Signer interface {
	Type() scheme.Type
	PublicKey() []byte
	Sign(message []byte) ([]byte, error)
}

// Ed25519Signer signs with an Ed25519 key. The same key material serves the
// ed25519 and solana schemes.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	typ  scheme.Type
}

// NewEd25519Signer returns an ed25519-scheme signer for a 32-byte seed.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	return newEd25519(seed, scheme.ED25519)
}

// NewSolanaSigner returns a solana-scheme signer for a 32-byte seed.
func NewSolanaSigner(seed []byte) (*Ed25519Signer, error) {
	return newEd25519(seed, scheme.Solana)
}

func newEd25519(seed []byte, typ scheme.Type) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed), typ: typ}, nil
}

func (s *Ed25519Signer) Type() scheme.Type { return s.typ }

func (s *Ed25519Signer) PublicKey() []byte {
	return []byte(s.priv.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

// EthereumSigner signs EIP-191 personal messages with a secp256k1 key.
type EthereumSigner struct {
	priv *secp256k1.PrivateKey
}

// NewEthereumSigner wraps a raw 32-byte secp256k1 private key.
func NewEthereumSigner(privateKey []byte) (*EthereumSigner, error) {
	if len(privateKey) != 32 {
		return nil, fmt.Errorf("expected secp256k1 key of 32 bytes, got %d", len(privateKey))
	}
	return &EthereumSigner{priv: secp256k1.PrivKeyFromBytes(privateKey)}, nil
}

// GenerateEthereumSigner returns a signer with a fresh random key.
func GenerateEthereumSigner() (*EthereumSigner, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &EthereumSigner{priv: priv}, nil
}

func (s *EthereumSigner) Type() scheme.Type { return scheme.Ethereum }

func (s *EthereumSigner) PublicKey() []byte {
	return s.priv.PubKey().SerializeUncompressed()
}

// Sign returns r || s || v with v in {27, 28}.
func (s *EthereumSigner) Sign(message []byte) ([]byte, error) {
	compact := ecdsa.SignCompact(s.priv, scheme.EthereumMessageHash(message), false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// ArweaveSigner signs with a 4096-bit RSA key using PSS over SHA-256.
type ArweaveSigner struct {
	priv *rsa.PrivateKey
	rand io.Reader
}

// NewArweaveSigner wraps a 4096-bit RSA key with public exponent 65537.
func NewArweaveSigner(priv *rsa.PrivateKey) (*ArweaveSigner, error) {
	if priv == nil {
		return nil, fmt.Errorf("missing private key")
	}
	if priv.N.BitLen() != 4096 {
		return nil, fmt.Errorf("arweave keys must be 4096-bit, got %d", priv.N.BitLen())
	}
	if priv.E != scheme.ArweavePublicExponent {
		return nil, fmt.Errorf("arweave keys must use exponent %d", scheme.ArweavePublicExponent)
	}
	return &ArweaveSigner{priv: priv, rand: rand.Reader}, nil
}

func (s *ArweaveSigner) Type() scheme.Type { return scheme.Arweave }

func (s *ArweaveSigner) PublicKey() []byte {
	return s.priv.N.FillBytes(make([]byte, 512))
}

func (s *ArweaveSigner) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return rsa.SignPSS(s.rand, s.priv, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
}
