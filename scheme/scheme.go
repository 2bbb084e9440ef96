// Package scheme is the closed registry of signature schemes a bundled data
// item may declare.
//
// The registry is built once at package initialisation and is read-only
// afterwards. Each entry fixes the byte lengths of the owner key and the
// signature so items can be decoded even when the scheme has no verifier.
package scheme

import (
	"errors"
	"fmt"
)

// Type is the 2-byte signature type code carried by every data item.
type Type uint16

const (
	Arweave       Type = 1
	ED25519       Type = 2
	Ethereum      Type = 3
	Solana        Type = 4
	InjectedAptos Type = 5
	MultiAptos    Type = 6
	TypedEthereum Type = 7
)

// ErrSignatureMismatch is returned by a VerifyFunc when the signature does not
// match the message under the given key.
var ErrSignatureMismatch = errors.New("scheme: signature mismatch")

// ErrNoVerifier is returned by Scheme.Verify for schemes registered for
// decoding only.
var ErrNoVerifier = errors.New("scheme: no verifier for scheme")

// VerifyFunc verifies sig over message using the raw owner key pub.
// It returns nil on success, ErrSignatureMismatch when the signature is wrong,
// or another error when the key or signature is malformed.
type VerifyFunc func(pub, message, sig []byte) error

// Scheme describes one signature scheme.
type Scheme struct {
	Type            Type
	Name            string
	PublicKeyLength int
	SignatureLength int

	verify VerifyFunc
}

// CanVerify reports whether the scheme has a verification routine.
func (s Scheme) CanVerify() bool { return s.verify != nil }

// Verify runs the scheme's verification routine.
func (s Scheme) Verify(pub, message, sig []byte) error {
	if s.verify == nil {
		return fmt.Errorf("%w %q", ErrNoVerifier, s.Name)
	}
	if len(pub) != s.PublicKeyLength {
		return fmt.Errorf("scheme %s: owner is %d bytes, want %d", s.Name, len(pub), s.PublicKeyLength)
	}
	if len(sig) != s.SignatureLength {
		return fmt.Errorf("scheme %s: signature is %d bytes, want %d", s.Name, len(sig), s.SignatureLength)
	}
	return s.verify(pub, message, sig)
}

func (t Type) String() string {
	if s, ok := registry[t]; ok {
		return s.Name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

var registry = map[Type]Scheme{
	Arweave:       {Type: Arweave, Name: "arweave", PublicKeyLength: 512, SignatureLength: 512, verify: verifyArweave},
	ED25519:       {Type: ED25519, Name: "ed25519", PublicKeyLength: 32, SignatureLength: 64, verify: verifyEd25519},
	Ethereum:      {Type: Ethereum, Name: "ethereum", PublicKeyLength: 65, SignatureLength: 65, verify: verifyEthereum},
	Solana:        {Type: Solana, Name: "solana", PublicKeyLength: 32, SignatureLength: 64, verify: verifyEd25519},
	InjectedAptos: {Type: InjectedAptos, Name: "injectedAptos", PublicKeyLength: 32, SignatureLength: 64},
	MultiAptos:    {Type: MultiAptos, Name: "multiAptos", PublicKeyLength: 32*32 + 1, SignatureLength: 64*32 + 4},
	TypedEthereum: {Type: TypedEthereum, Name: "typedEthereum", PublicKeyLength: 42, SignatureLength: 65},
}

// Lookup returns the scheme registered for t.
func Lookup(t Type) (Scheme, bool) {
	s, ok := registry[t]
	return s, ok
}

// All returns every registered scheme ordered by type code.
func All() []Scheme {
	out := make([]Scheme, 0, len(registry))
	for t := Arweave; t <= TypedEthereum; t++ {
		if s, ok := registry[t]; ok {
			out = append(out, s)
		}
	}
	return out
}
