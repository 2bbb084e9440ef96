// Package source selects bundle files from an input directory and loads them
// as immutable byte buffers.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"xdao.co/ans104/bundle"
)

// DefaultMaxDecompressedBytes bounds a decompressed bundle held in memory.
const DefaultMaxDecompressedBytes = 4 << 30

// ErrTooLarge reports a compressed bundle that inflates past the limit.
var ErrTooLarge = errors.New("source: decompressed bundle exceeds limit")

// SelectBundles lists the bundle files in dir, sorted by name. With a
// non-empty txID only files whose name contains it are returned; txID must
// have the 43-character identifier shape. Dotfiles (including .gitkeep) and
// directories are skipped.
func SelectBundles(dir, txID string) ([]string, error) {
	if txID != "" && !bundle.IsTxID(txID) {
		return nil, fmt.Errorf("source: %q is not a 43-character transaction id", txID)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: reading input directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if txID != "" && !strings.Contains(name, txID) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// Name returns the bundle name used for its output directory: the file name
// without a compression suffix.
func Name(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".zst", ".lz4"} {
		if strings.HasSuffix(base, ext) && len(base) > len(ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// Buffer is a loaded bundle. Bytes must not be used after Close.
type Buffer struct {
	data  []byte
	mm    mmap.MMap
	file  *os.File
	mmapd bool
}

// Bytes returns the bundle contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Mapped reports whether the contents are memory-mapped from the file.
func (b *Buffer) Mapped() bool { return b.mmapd }

// Close releases the mapping or the in-memory copy.
func (b *Buffer) Close() error {
	var err error
	if b.mmapd {
		err = b.mm.Unmap()
	}
	if b.file != nil {
		if cerr := b.file.Close(); err == nil {
			err = cerr
		}
	}
	b.data, b.mm, b.file, b.mmapd = nil, nil, nil, false
	return err
}

// Options controls Open.
type Options struct {
	// MaxDecompressedBytes bounds .zst and .lz4 inputs. Zero uses the default.
	MaxDecompressedBytes int64
}

// Open loads path. Plain files are memory-mapped read-only; files ending in
// .zst or .lz4 are decompressed into memory.
func Open(path string, opts Options) (*Buffer, error) {
	limit := opts.MaxDecompressedBytes
	if limit <= 0 {
		limit = DefaultMaxDecompressedBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		defer f.Close()
		dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", path, err)
		}
		defer dec.Close()
		return readLimited(path, dec, limit)
	case strings.HasSuffix(path, ".lz4"):
		defer f.Close()
		return readLimited(path, lz4.NewReader(f), limit)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		// Zero-length files cannot be mapped.
		f.Close()
		return &Buffer{data: []byte{}}, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: mapping %s: %w", path, err)
	}
	return &Buffer{data: mm, mm: mm, file: f, mmapd: true}, nil
}

func readLimited(path string, r io.Reader, limit int64) (*Buffer, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("source: decompressing %s: %w", path, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: %s (limit %d bytes)", ErrTooLarge, path, limit)
	}
	return &Buffer{data: b}, nil
}
