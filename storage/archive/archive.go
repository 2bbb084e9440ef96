// Package archive moves stored payloads between stores as deterministic TAR
// files: one blocks/<cid> entry per payload plus an optional index.json
// mapping item names to CIDs. Archives may be zstd-compressed.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"

	"xdao.co/ans104/storage"
)

// FormatVersion is the current archive index schema version.
const FormatVersion = 1

// IndexName is the archive entry holding the index.
const IndexName = "index.json"

const blockPrefix = "blocks/"

var (
	epoch0    = time.Unix(0, 0).UTC()
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ExportOptions controls archive export behavior.
type ExportOptions struct {
	// Labels maps item names to CIDs. Labelled CIDs are exported even when
	// absent from the ids argument.
	Labels map[string]cid.Cid
	// IncludeIndex writes index.json after the blocks.
	IncludeIndex bool
	// Compress wraps the archive in a zstd frame.
	Compress bool
}

type index struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec,omitempty"`
	Multihash string       `json:"multihash,omitempty"`
	Blocks    []indexBlock `json:"blocks,omitempty"`
	Labels    []indexLabel `json:"labels"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// Export writes a deterministic archive of the payloads for ids.
//
// Blocks are ordered by CID string and every TAR header is normalized.
// Payloads are streamed from cas twice: once to learn the size for the
// header and once to copy, each read checked against its CID.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) (err error) {
	if cas == nil {
		return fmt.Errorf("archive: nil CAS")
	}
	labels, err := labelList(opts.Labels)
	if err != nil {
		return err
	}

	uniq := make(map[string]cid.Cid, len(ids)+len(labels))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	for _, id := range opts.Labels {
		uniq[id.String()] = id
	}
	order := make([]string, 0, len(uniq))
	for s := range uniq {
		order = append(order, s)
	}
	sort.Strings(order)

	if opts.Compress {
		zw, zerr := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if zerr != nil {
			return zerr
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}
	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	idx := index{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256", Labels: labels}
	for _, s := range order {
		size, err := exportBlock(ctx, tw, cas, uniq[s])
		if err != nil {
			return fmt.Errorf("archive: %s: %w", s, err)
		}
		idx.Blocks = append(idx.Blocks, indexBlock{CID: s, Size: size})
	}
	if !opts.IncludeIndex {
		return nil
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return WriteFile(tw, IndexName, int64(len(b)), bytes.NewReader(b))
}

func exportBlock(ctx context.Context, tw *tar.Writer, cas storage.CAS, id cid.Cid) (int64, error) {
	size, err := copyBlock(ctx, io.Discard, cas, id)
	if err != nil {
		return 0, err
	}
	hdr := header(blockPrefix+id.String(), size)
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	n, err := copyBlock(ctx, tw, cas, id)
	if err == nil && n != size {
		err = fmt.Errorf("payload changed size during export (%d then %d bytes)", size, n)
	}
	return size, err
}

func copyBlock(ctx context.Context, w io.Writer, cas storage.CAS, id cid.Cid) (int64, error) {
	rc, err := cas.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}

// ImportOptions controls archive import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips entries that are neither blocks nor the index.
	// By default they fail the import.
	IgnoreUnknown bool
}

// Import stores every block of the archive read from r in cas and returns
// the labels from index.json, if any. A zstd-compressed archive is detected
// from its magic number.
//
// The CID cas reports for each block must equal the CID in its entry name,
// else ErrCIDMismatch. The mismatching bytes remain stored under their own
// CID.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (map[string]cid.Cid, error) {
	if cas == nil {
		return nil, fmt.Errorf("archive: nil CAS")
	}
	br := bufio.NewReader(r)
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var labels map[string]cid.Cid
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return labels, nil
		}
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		name := CleanPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("archive: invalid entry path %q", h.Name)
		}

		switch {
		case h.Typeflag != tar.TypeReg:
			if !opts.IgnoreUnknown {
				return nil, fmt.Errorf("archive: unexpected entry type %v (%s)", h.Typeflag, name)
			}
		case name == IndexName:
			if labels, err = ReadLabels(tr); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, blockPrefix):
			if err := importBlock(ctx, tr, cas, strings.TrimPrefix(name, blockPrefix), seen); err != nil {
				return nil, err
			}
		case opts.IgnoreUnknown:
		default:
			return nil, fmt.Errorf("archive: unknown entry %s", name)
		}
	}
}

func importBlock(ctx context.Context, r io.Reader, cas storage.CAS, name string, seen map[string]struct{}) error {
	id, err := cid.Decode(name)
	if err != nil || !id.Defined() {
		return storage.ErrInvalidCID
	}
	key := id.String()
	if _, dup := seen[key]; dup {
		return fmt.Errorf("archive: duplicate block entry %s", key)
	}
	seen[key] = struct{}{}

	got, err := cas.Put(ctx, r)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return fmt.Errorf("archive: block %s: %w", key, storage.ErrCIDMismatch)
	}
	return nil
}

func header(name string, size int64) *tar.Header {
	return &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     size,
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
}

// WriteFile writes one regular-file entry with a normalized header so that
// equal inputs produce byte-identical archives.
func WriteFile(tw *tar.Writer, name string, size int64, content io.Reader) error {
	if err := tw.WriteHeader(header(name, size)); err != nil {
		return err
	}
	_, err := io.Copy(tw, content)
	return err
}

// CleanPath normalizes a slash-separated entry name. It returns "" for
// empty names and names with empty, "." or ".." segments.
func CleanPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
