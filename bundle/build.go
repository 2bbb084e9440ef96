package bundle

import (
	"encoding/binary"
	"fmt"

	"xdao.co/ans104/scheme"
)

// Signer signs an item's signing digest. Implementations live in package keys.
type Signer interface {
	Type() scheme.Type
	PublicKey() []byte
	Sign(message []byte) ([]byte, error)
}

// ItemOptions carries the optional fields of a new data item.
type ItemOptions struct {
	Target []byte
	Anchor []byte
	Tags   []Tag
}

// CreateItem encodes and signs a data item carrying payload.
func CreateItem(s Signer, payload []byte, opts ItemOptions) ([]byte, error) {
	sch, ok := scheme.Lookup(s.Type())
	if !ok {
		return nil, fmt.Errorf("unknown signature type %d", s.Type())
	}
	owner := s.PublicKey()
	if len(owner) != sch.PublicKeyLength {
		return nil, fmt.Errorf("%s owner is %d bytes, want %d", sch.Name, len(owner), sch.PublicKeyLength)
	}
	if opts.Target != nil && len(opts.Target) != TargetSize {
		return nil, fmt.Errorf("target must be %d bytes", TargetSize)
	}
	if opts.Anchor != nil && len(opts.Anchor) != AnchorSize {
		return nil, fmt.Errorf("anchor must be %d bytes", AnchorSize)
	}
	if err := ValidateTags(opts.Tags); err != nil {
		return nil, err
	}
	rawTags := EncodeTags(opts.Tags)

	size := 2 + sch.SignatureLength + sch.PublicKeyLength + 2 + len(opts.Target) + len(opts.Anchor) + 16 + len(rawTags) + len(payload)
	raw := make([]byte, 0, size)
	raw = binary.LittleEndian.AppendUint16(raw, uint16(sch.Type))
	sigOff := len(raw)
	raw = append(raw, make([]byte, sch.SignatureLength)...)
	raw = append(raw, owner...)
	raw = appendOptional(raw, opts.Target)
	raw = appendOptional(raw, opts.Anchor)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(len(opts.Tags)))
	raw = binary.LittleEndian.AppendUint64(raw, uint64(len(rawTags)))
	raw = append(raw, rawTags...)
	raw = append(raw, payload...)

	it, err := ParseItem(raw)
	if err != nil {
		return nil, err
	}
	digest, err := SigningDigest(it, nil)
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing item: %w", err)
	}
	if len(sig) != sch.SignatureLength {
		return nil, fmt.Errorf("%s signature is %d bytes, want %d", sch.Name, len(sig), sch.SignatureLength)
	}
	copy(raw[sigOff:], sig)
	return raw, nil
}

func appendOptional(b, field []byte) []byte {
	if field == nil {
		return append(b, 0)
	}
	return append(append(b, 1), field...)
}

// Assemble packs encoded items into a bundle, declaring each item's id from
// its signature.
func Assemble(items [][]byte) ([]byte, error) {
	total := HeaderSize(len(items))
	for _, raw := range items {
		total += int64(len(raw))
	}
	out := make([]byte, HeaderSize(len(items)), total)
	putLE256(out[:countSize], uint64(len(items)))
	for i, raw := range items {
		it, err := ParseItem(raw)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		entry := out[countSize+i*entrySize : countSize+(i+1)*entrySize]
		putLE256(entry[:countSize], uint64(len(raw)))
		id := ItemID(it.Signature)
		copy(entry[countSize:], id[:])
	}
	for _, raw := range items {
		out = append(out, raw...)
	}
	return out, nil
}
