package storage

import (
	"io"

	"github.com/ipfs/go-cid"

	"xdao.co/ans104/cidutil"
)

// VerifyReader wraps rc so that reaching EOF checks the bytes read against
// id. A mismatch is reported as ErrCIDMismatch in place of io.EOF.
func VerifyReader(id cid.Cid, rc io.ReadCloser) io.ReadCloser {
	return &verifyingReader{id: id, rc: rc, h: cidutil.NewHasher()}
}

type verifyingReader struct {
	id cid.Cid
	rc io.ReadCloser
	h  *cidutil.Hasher
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	v.h.Write(p[:n])
	if err == io.EOF {
		got, herr := v.h.CID()
		if herr != nil {
			return n, herr
		}
		if !got.Equals(v.id) {
			return n, ErrCIDMismatch
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error { return v.rc.Close() }
