// Package bundle decodes and verifies ANS-104 bundles: a header table of
// (size, id) pairs followed by independently signed data items.
package bundle

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// countSize is the width of the item count and of each size field.
	countSize = 32
	// entrySize is the width of one (size, id) pair in the header table.
	entrySize = 64
	// IDSize is the width of an item identifier.
	IDSize = 32
)

// ID is a data item identifier: SHA-256 of the item's signature.
type ID [IDSize]byte

// String returns the unpadded base64url form used to name items.
func (id ID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseID decodes the 43-character base64url form of an ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parsing item id %q: %w", s, err)
	}
	if len(b) != IDSize {
		return id, fmt.Errorf("item id %q is %d bytes, want %d", s, len(b), IDSize)
	}
	copy(id[:], b)
	return id, nil
}

// ItemDescriptor locates one item within the bundle buffer.
type ItemDescriptor struct {
	Index      int
	Size       int64
	DeclaredID ID
	Offset     int64
}

// Bundle is a parsed bundle header over an immutable byte buffer. The buffer
// is shared read-only by every DataItem decoded from it.
type Bundle struct {
	buf         []byte
	descriptors []ItemDescriptor
}

// Open parses the header of buf. buf must not be modified afterwards.
func Open(buf []byte) (*Bundle, error) {
	_, descs, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	return &Bundle{buf: buf, descriptors: descs}, nil
}

// Len returns the number of items.
func (b *Bundle) Len() int { return len(b.descriptors) }

// Descriptors returns the offset table in header order.
func (b *Bundle) Descriptors() []ItemDescriptor {
	return append([]ItemDescriptor(nil), b.descriptors...)
}

// Bytes returns the underlying buffer. Callers must not modify it.
func (b *Bundle) Bytes() []byte { return b.buf }

// HeaderSize returns the byte length of the header for count items.
func HeaderSize(count int) int64 {
	return countSize + int64(count)*entrySize
}

// ParseHeader reads the item count and the (size, id) table from buf and
// computes each item's start offset. It checks that the table fits in buf and
// that the declared sizes exactly consume the bytes that follow it.
func ParseHeader(buf []byte) (int, []ItemDescriptor, error) {
	if len(buf) < countSize {
		return 0, nil, newError(KindFormat, "ANS-HDR-001", fmt.Sprintf("bundle is %d bytes, shorter than the %d-byte item count", len(buf), countSize))
	}
	n, ok := readLE256(buf[:countSize])
	if !ok {
		return 0, nil, newError(KindFormat, "ANS-HDR-002", "item count does not fit in 64 bits")
	}
	if n == 0 {
		if len(buf) != countSize {
			return 0, nil, newError(KindFormat, "ANS-HDR-003", fmt.Sprintf("item count is 0 but %d bytes follow the header", len(buf)-countSize))
		}
		return 0, nil, nil
	}

	avail := uint64(len(buf)-countSize) / entrySize
	if n > avail {
		return 0, nil, newError(KindFormat, "ANS-HDR-004", fmt.Sprintf("header declares %d items but buffer holds at most %d table entries", n, avail))
	}
	count := int(n)
	headerSize := HeaderSize(count)

	descs := make([]ItemDescriptor, count)
	offset := headerSize
	remaining := int64(len(buf)) - headerSize
	for i := 0; i < count; i++ {
		entry := buf[countSize+i*entrySize : countSize+(i+1)*entrySize]
		size, ok := readLE256(entry[:countSize])
		if !ok || size > math.MaxInt64 {
			return 0, nil, newError(KindFormat, "ANS-HDR-002", fmt.Sprintf("item %d size does not fit in 63 bits", i))
		}
		if int64(size) > remaining {
			return 0, nil, newError(KindFormat, "ANS-HDR-005", fmt.Sprintf("item %d size %d overruns the bundle", i, size))
		}
		d := ItemDescriptor{Index: i, Size: int64(size), Offset: offset}
		copy(d.DeclaredID[:], entry[countSize:])
		descs[i] = d
		offset += int64(size)
		remaining -= int64(size)
	}
	if remaining != 0 {
		return 0, nil, newError(KindFormat, "ANS-HDR-005", fmt.Sprintf("item sizes leave %d unaccounted bytes", remaining))
	}
	return count, descs, nil
}

// readLE256 reads a 256-bit little-endian integer, reporting false when it
// does not fit in a uint64.
func readLE256(b []byte) (uint64, bool) {
	for _, c := range b[8:] {
		if c != 0 {
			return 0, false
		}
	}
	return binary.LittleEndian.Uint64(b[:8]), true
}

func putLE256(b []byte, v uint64) {
	clear(b)
	binary.LittleEndian.PutUint64(b[:8], v)
}
