package bundle

import (
	"crypto/sha256"
	"strconv"

	"xdao.co/ans104/deephash"
)

// FormatVersion is the data item format marker covered by every signature.
const FormatVersion = "1"

// ItemID returns the identifier for an item signature. It depends only on the
// signature bytes, never on the payload or on verification.
func ItemID(signature []byte) ID {
	return sha256.Sum256(signature)
}

// SigningDigest computes the deep hash the item's signature covers:
//
//	["dataitem", "1", signature type, owner, target, anchor, tag block, payload]
//
// Absent target and anchor are empty blobs. The payload is streamed through
// buf (nil allocates a 64 KiB buffer).
func SigningDigest(it *DataItem, buf []byte) (deephash.Digest, error) {
	payload, err := deephash.BlobReader(it.PayloadReader(), it.PayloadSize(), buf)
	if err != nil {
		return deephash.Digest{}, err
	}
	return deephash.List(
		deephash.Blob([]byte("dataitem")),
		deephash.Blob([]byte(FormatVersion)),
		deephash.Blob([]byte(strconv.Itoa(int(it.SignatureType)))),
		deephash.Blob(it.Owner),
		deephash.Blob(it.Target),
		deephash.Blob(it.Anchor),
		deephash.Blob(it.RawTags),
		payload,
	), nil
}
