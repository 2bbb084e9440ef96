package deephash

import (
	"bytes"
	"crypto/sha512"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_MatchesConstruction(t *testing.T) {
	data := []byte("hello bundle")
	tag := sha512.Sum384([]byte("blob12"))
	sum := sha512.Sum384(data)
	want := sha512.Sum384(append(tag[:], sum[:]...))

	assert.Equal(t, Digest(want), Blob(data))
}

func TestBlob_Empty(t *testing.T) {
	tag := sha512.Sum384([]byte("blob0"))
	sum := sha512.Sum384(nil)
	want := sha512.Sum384(append(tag[:], sum[:]...))

	assert.Equal(t, Digest(want), Blob(nil))
	assert.Equal(t, Blob(nil), Blob([]byte{}))
}

func TestBlobReader_MatchesBlob(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 10000)

	got, err := BlobReader(bytes.NewReader(data), int64(len(data)), make([]byte, 17))
	require.NoError(t, err)
	assert.Equal(t, Blob(data), got)

	got, err = BlobReader(bytes.NewReader(data), int64(len(data)), nil)
	require.NoError(t, err)
	assert.Equal(t, Blob(data), got)
}

func TestBlobReader_ReadsExactlySize(t *testing.T) {
	r := strings.NewReader("abcdefgh")
	got, err := BlobReader(r, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, Blob([]byte("abcd")), got)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(rest))
}

func TestBlobReader_Short(t *testing.T) {
	_, err := BlobReader(strings.NewReader("abc"), 10, nil)
	require.Error(t, err)

	_, err = BlobReader(strings.NewReader("abc"), -1, nil)
	require.Error(t, err)
}

func TestList_Fold(t *testing.T) {
	a := Blob([]byte("a"))
	b := Blob([]byte("b"))

	acc := sha512.Sum384([]byte("list2"))
	acc = sha512.Sum384(append(acc[:], a[:]...))
	acc = sha512.Sum384(append(acc[:], b[:]...))

	assert.Equal(t, Digest(acc), List(a, b))
}

func TestList_OrderSensitive(t *testing.T) {
	a := Blob([]byte("a"))
	b := Blob([]byte("b"))
	assert.NotEqual(t, List(a, b), List(b, a))
	assert.NotEqual(t, List(a), List(a, Blob(nil)))
}
