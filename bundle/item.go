package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"xdao.co/ans104/scheme"
)

const (
	// TargetSize and AnchorSize are the widths of the optional fields.
	TargetSize = 32
	AnchorSize = 32
)

// DataItem is one decoded item. Every byte field is a sub-slice of the bundle
// buffer; the payload is addressed by range and never copied during decode.
type DataItem struct {
	SignatureType scheme.Type
	Signature     []byte
	Owner         []byte
	Target        []byte
	Anchor        []byte
	Tags          []Tag
	RawTags       []byte

	raw           []byte
	payloadOffset int64
}

// Size returns the item's total byte length.
func (it *DataItem) Size() int64 { return int64(len(it.raw)) }

// PayloadOffset returns the payload's offset within the item.
func (it *DataItem) PayloadOffset() int64 { return it.payloadOffset }

// PayloadSize returns the payload length in bytes.
func (it *DataItem) PayloadSize() int64 { return int64(len(it.raw)) - it.payloadOffset }

// PayloadReader streams the payload out of the bundle buffer.
func (it *DataItem) PayloadReader() io.Reader {
	return bytes.NewReader(it.raw[it.payloadOffset:])
}

// PayloadBytes returns the payload as a read-only view of the bundle buffer.
func (it *DataItem) PayloadBytes() []byte {
	return it.raw[it.payloadOffset:]
}

// Raw returns the item's encoded bytes as a view of the bundle buffer.
func (it *DataItem) Raw() []byte { return it.raw }

// DecodeItem decodes the item located by desc within buf.
func DecodeItem(buf []byte, desc ItemDescriptor) (*DataItem, error) {
	if desc.Offset < 0 || desc.Size < 0 || desc.Offset+desc.Size > int64(len(buf)) {
		return nil, newError(KindFormat, "ANS-ITEM-001", fmt.Sprintf("descriptor [%d, +%d) outside bundle of %d bytes", desc.Offset, desc.Size, len(buf)))
	}
	it, err := ParseItem(buf[desc.Offset : desc.Offset+desc.Size])
	if err != nil {
		return nil, atItem(err, desc.Index)
	}
	return it, nil
}

// ParseItem decodes a single encoded data item.
func ParseItem(raw []byte) (*DataItem, error) {
	r := itemReader{buf: raw}

	sigType, err := r.uint16()
	if err != nil {
		return nil, err
	}
	sch, ok := scheme.Lookup(scheme.Type(sigType))
	if !ok {
		return nil, newError(KindUnsupportedScheme, "ANS-SIG-001", fmt.Sprintf("unknown signature type %d", sigType))
	}

	it := &DataItem{SignatureType: sch.Type, raw: raw}
	if it.Signature, err = r.next(sch.SignatureLength, "signature"); err != nil {
		return nil, err
	}
	if it.Owner, err = r.next(sch.PublicKeyLength, "owner"); err != nil {
		return nil, err
	}
	if it.Target, err = r.optional(TargetSize, "target"); err != nil {
		return nil, err
	}
	if it.Anchor, err = r.optional(AnchorSize, "anchor"); err != nil {
		return nil, err
	}

	tagCount, err := r.uint64("tag count")
	if err != nil {
		return nil, err
	}
	tagLen, err := r.uint64("tag block length")
	if err != nil {
		return nil, err
	}
	if tagLen > uint64(r.remaining()) {
		return nil, newError(KindFormat, "ANS-ITEM-004", fmt.Sprintf("tag block length %d exceeds the %d bytes left in the item", tagLen, r.remaining()))
	}
	if tagCount > tagLen {
		// Every tag costs at least one byte, so this also bounds the allocation.
		return nil, newError(KindFormat, "ANS-TAG-003", fmt.Sprintf("%d tags cannot fit in a %d-byte tag block", tagCount, tagLen))
	}
	it.RawTags, _ = r.next(int(tagLen), "tag block")
	if it.Tags, err = DecodeTags(it.RawTags, int(tagCount)); err != nil {
		return nil, err
	}

	it.payloadOffset = int64(r.off)
	return it, nil
}

type itemReader struct {
	buf []byte
	off int
}

func (r *itemReader) remaining() int { return len(r.buf) - r.off }

func (r *itemReader) next(n int, field string) ([]byte, error) {
	if n > r.remaining() {
		return nil, newError(KindFormat, "ANS-ITEM-002", fmt.Sprintf("item truncated reading %s: need %d bytes, have %d", field, n, r.remaining()))
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

func (r *itemReader) uint16() (uint16, error) {
	b, err := r.next(2, "signature type")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *itemReader) uint64(field string) (uint64, error) {
	b, err := r.next(8, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// optional reads a presence flag and, when it is 1, a fixed-width field.
func (r *itemReader) optional(n int, field string) ([]byte, error) {
	flag, err := r.next(1, field+" flag")
	if err != nil {
		return nil, err
	}
	switch flag[0] {
	case 0:
		return nil, nil
	case 1:
		return r.next(n, field)
	default:
		return nil, newError(KindFormat, "ANS-ITEM-003", fmt.Sprintf("%s presence flag is %d, want 0 or 1", field, flag[0]))
	}
}
