// Package deephash implements the nested SHA-384 digest used to sign bundled
// data items.
//
// A blob is digested as H(H("blob" + len) || H(bytes)). A list is folded from
// H("list" + count), absorbing the deep hash of each element in order. Because
// every field is digested on its own before the fold, a blob can be streamed
// from an io.Reader without ever being held in memory.
package deephash

import (
	"crypto/sha512"
	"fmt"
	"io"
	"strconv"
)

// Size is the length in bytes of a deep hash digest.
const Size = sha512.Size384

// Digest is a deep hash value.
type Digest [Size]byte

// Blob returns the deep hash of an in-memory byte string.
func Blob(b []byte) Digest {
	tag := sha512.Sum384(blobTag(int64(len(b))))
	data := sha512.Sum384(b)
	return pair(tag, data)
}

// BlobReader returns the deep hash of exactly size bytes read from r.
// buf is used as the copy buffer; a nil buf allocates a 64 KiB one.
func BlobReader(r io.Reader, size int64, buf []byte) (Digest, error) {
	if size < 0 {
		return Digest{}, fmt.Errorf("deephash: negative blob size %d", size)
	}
	if buf == nil {
		buf = make([]byte, 64<<10)
	}
	h := sha512.New384()
	n, err := io.CopyBuffer(h, io.LimitReader(r, size), buf)
	if err != nil {
		return Digest{}, err
	}
	if n != size {
		return Digest{}, fmt.Errorf("deephash: short blob: read %d of %d bytes", n, size)
	}
	var data Digest
	h.Sum(data[:0])
	tag := sha512.Sum384(blobTag(size))
	return pair(tag, data), nil
}

// List folds already-computed element digests into the deep hash of a list.
func List(elems ...Digest) Digest {
	acc := Digest(sha512.Sum384([]byte("list" + strconv.Itoa(len(elems)))))
	for _, e := range elems {
		acc = pair(acc, e)
	}
	return acc
}

func blobTag(n int64) []byte {
	return []byte("blob" + strconv.FormatInt(n, 10))
}

func pair(a, b Digest) Digest {
	var buf [2 * Size]byte
	copy(buf[:Size], a[:])
	copy(buf[Size:], b[:])
	return sha512.Sum384(buf[:])
}
