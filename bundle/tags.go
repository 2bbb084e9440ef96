package bundle

import (
	"encoding/binary"
	"fmt"
)

// Tag is one name/value pair attached to a data item. Names need not be unique.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Limits the reference implementation applies when creating and validating items.
const (
	MaxTags        = 128
	MaxTagBytes    = 4096
	MaxTagNameLen  = 1024
	MaxTagValueLen = 3072
)

// DecodeTags decodes a tag block holding exactly count tags.
//
// A tag block is an Avro array of {name: bytes, value: bytes} records in its
// canonical form: a single block with a positive count, each byte string
// prefixed by its zig-zag varint length, closed by a zero count. An empty
// list is the empty byte string. Anything else, including non-minimal
// varints, is rejected so that EncodeTags(DecodeTags(b)) == b.
func DecodeTags(b []byte, count int) ([]Tag, error) {
	if count < 0 {
		return nil, newError(KindFormat, "ANS-TAG-001", fmt.Sprintf("negative tag count %d", count))
	}
	if count == 0 {
		if len(b) != 0 {
			return nil, newError(KindFormat, "ANS-TAG-002", fmt.Sprintf("tag count is 0 but tag block has %d bytes", len(b)))
		}
		return nil, nil
	}

	d := tagDecoder{buf: b}
	block, err := d.long()
	if err != nil {
		return nil, err
	}
	if block != int64(count) {
		return nil, newError(KindFormat, "ANS-TAG-003", fmt.Sprintf("tag block declares %d tags, header declares %d", block, count))
	}

	tags := make([]Tag, 0, count)
	for i := 0; i < count; i++ {
		name, err := d.bytes()
		if err != nil {
			return nil, err
		}
		value, err := d.bytes()
		if err != nil {
			return nil, err
		}
		tags = append(tags, Tag{Name: string(name), Value: string(value)})
	}

	end, err := d.long()
	if err != nil {
		return nil, err
	}
	if end != 0 {
		return nil, newError(KindFormat, "ANS-TAG-003", "tag block has more than one array block")
	}
	if d.off != len(b) {
		return nil, newError(KindFormat, "ANS-TAG-004", fmt.Sprintf("%d trailing bytes after tag block", len(b)-d.off))
	}
	return tags, nil
}

// EncodeTags encodes tags as a canonical tag block.
func EncodeTags(tags []Tag) []byte {
	if len(tags) == 0 {
		return nil
	}
	size := binary.MaxVarintLen64 * 2
	for _, t := range tags {
		size += len(t.Name) + len(t.Value) + 2*binary.MaxVarintLen64
	}
	out := make([]byte, 0, size)
	out = binary.AppendVarint(out, int64(len(tags)))
	for _, t := range tags {
		out = binary.AppendVarint(out, int64(len(t.Name)))
		out = append(out, t.Name...)
		out = binary.AppendVarint(out, int64(len(t.Value)))
		out = append(out, t.Value...)
	}
	return binary.AppendVarint(out, 0)
}

// ValidateTags applies the creation-time limits on tag count and sizes.
func ValidateTags(tags []Tag) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("%d tags exceeds the limit of %d", len(tags), MaxTags)
	}
	for i, t := range tags {
		if t.Name == "" || len(t.Name) > MaxTagNameLen {
			return fmt.Errorf("tag %d: name must be 1..%d bytes", i, MaxTagNameLen)
		}
		if t.Value == "" || len(t.Value) > MaxTagValueLen {
			return fmt.Errorf("tag %d: value must be 1..%d bytes", i, MaxTagValueLen)
		}
	}
	return nil
}

// TagMap flattens tags into a name → value map; later duplicates win.
func TagMap(tags []Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Name] = t.Value
	}
	return m
}

type tagDecoder struct {
	buf []byte
	off int
}

func (d *tagDecoder) long() (int64, error) {
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		return 0, newError(KindFormat, "ANS-TAG-005", fmt.Sprintf("bad varint at tag block offset %d", d.off))
	}
	if n != len(binary.AppendVarint(nil, v)) {
		return 0, newError(KindFormat, "ANS-TAG-005", fmt.Sprintf("non-minimal varint at tag block offset %d", d.off))
	}
	d.off += n
	return v, nil
}

func (d *tagDecoder) bytes() ([]byte, error) {
	n, err := d.long()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > int64(len(d.buf)-d.off) {
		return nil, newError(KindFormat, "ANS-TAG-006", fmt.Sprintf("tag field length %d overruns tag block at offset %d", n, d.off))
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}
