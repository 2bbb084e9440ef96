package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfoRole prefixes the role label in the HKDF info. Changing it changes
// every derived owner key.
var hkdfInfoRole = []byte("ans104.signer.role.v1:")

var rolePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseSeedHex decodes a 32-byte Ed25519 seed from hex. Surrounding space
// and a 0x prefix are ignored.
func ParseSeedHex(seedHex string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, want %d", len(data), ed25519.SeedSize)
	}
	return data, nil
}

// CheckRole reports whether role is a usable derivation label: one or more
// ASCII letters, digits, '-' or '_'.
func CheckRole(role string) error {
	if !rolePattern.MatchString(role) {
		return fmt.Errorf("invalid role %q", role)
	}
	return nil
}

// DeriveRoleSeed derives the Ed25519 seed for role from a root seed with
// HKDF-SHA256, so one root can sign bundles under several owner keys.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed is %d bytes, want %d", len(rootSeed), ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	info := append(append([]byte{}, hkdfInfoRole...), role...)
	out := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, rootSeed, nil, info), out); err != nil {
		return nil, err
	}
	return out, nil
}
