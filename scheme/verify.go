package scheme

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ArweavePublicExponent is the fixed RSA exponent of Arweave owner keys; the
// owner field carries only the modulus.
const ArweavePublicExponent = 65537

// ArweavePublicKey rebuilds the RSA public key from a raw owner modulus.
func ArweavePublicKey(owner []byte) *rsa.PublicKey {
	return &rsa.PublicKey{N: new(big.Int).SetBytes(owner), E: ArweavePublicExponent}
}

func verifyArweave(pub, message, sig []byte) error {
	digest := sha256.Sum256(message)
	err := rsa.VerifyPSS(ArweavePublicKey(pub), crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
	if err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return ErrSignatureMismatch
		}
		return fmt.Errorf("scheme arweave: %w", err)
	}
	return nil
}

func verifyEd25519(pub, message, sig []byte) error {
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// EthereumMessageHash returns keccak256 of the EIP-191 personal message
// envelope around message.
func EthereumMessageHash(message []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))))
	_, _ = h.Write(message)
	return h.Sum(nil)
}

// Ethereum signatures are r || s || v. The owner is the 65-byte uncompressed
// secp256k1 key; the recovered key must match it exactly.
func verifyEthereum(pub, message, sig []byte) error {
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return fmt.Errorf("scheme ethereum: invalid recovery byte %d", sig[64])
	}
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], sig[:64])

	recovered, _, err := ecdsa.RecoverCompact(compact, EthereumMessageHash(message))
	if err != nil {
		return ErrSignatureMismatch
	}
	if !bytes.Equal(recovered.SerializeUncompressed(), pub) {
		return ErrSignatureMismatch
	}
	return nil
}
