package bundle

import (
	"errors"
	"fmt"

	"xdao.co/ans104/deephash"
	"xdao.co/ans104/scheme"
)

// Verify checks the item's signature over digest with the owner key, using
// the scheme registered for the item's signature type.
func Verify(it *DataItem, digest deephash.Digest) error {
	sch, ok := scheme.Lookup(it.SignatureType)
	if !ok {
		return newError(KindUnsupportedScheme, "ANS-SIG-001", fmt.Sprintf("unknown signature type %d", it.SignatureType))
	}
	if !sch.CanVerify() {
		return newError(KindUnsupportedScheme, "ANS-SIG-002", fmt.Sprintf("signature scheme %s has no verifier", sch.Name))
	}
	if err := sch.Verify(it.Owner, digest[:], it.Signature); err != nil {
		if errors.Is(err, scheme.ErrSignatureMismatch) {
			return newError(KindVerification, "ANS-VER-001", "signature does not match")
		}
		return wrapError(KindVerification, "ANS-VER-002", "malformed key or signature", err)
	}
	return nil
}

// checkLimits applies the item validity limits of the reference verifier.
func checkLimits(it *DataItem) error {
	if len(it.RawTags) > MaxTagBytes {
		return newError(KindVerification, "ANS-VER-003", fmt.Sprintf("tag block is %d bytes, limit %d", len(it.RawTags), MaxTagBytes))
	}
	if len(it.Tags) > MaxTags {
		return newError(KindVerification, "ANS-VER-003", fmt.Sprintf("%d tags, limit %d", len(it.Tags), MaxTags))
	}
	return nil
}
