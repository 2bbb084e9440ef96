// Package cidutil derives the content identifiers used for stored payloads:
// CIDv1 with the raw codec over a sha2-256 multihash.
package cidutil

import (
	"crypto/sha256"
	"hash"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns the CIDv1 string for data.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1
		// length this is unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// CIDv1RawSHA256Reader streams r to EOF and returns its CID and length.
func CIDv1RawSHA256Reader(r io.Reader) (cid.Cid, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return cid.Undef, n, err
	}
	id, err := h.CID()
	return id, n, err
}

// Hasher accumulates written bytes into a raw sha2-256 CID.
type Hasher struct {
	hash.Hash
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{Hash: sha256.New()}
}

// CID returns the identifier of the bytes written so far.
func (h *Hasher) CID() (cid.Cid, error) {
	mh, err := multihash.Encode(h.Sum(nil), multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
