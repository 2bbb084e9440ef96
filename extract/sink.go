package extract

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/ans104/bundle"
	"xdao.co/ans104/model"
	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/archive"
)

// Sink receives the files extracted from one bundle.
type Sink interface {
	// Put stores size bytes from r under name.
	Put(ctx context.Context, name string, size int64, r io.Reader) (model.OutputEntry, error)
	Close() error
}

// SinkFactory opens the sink for a bundle.
type SinkFactory func(bundleName string) (Sink, error)

var copyBuffers = sync.Pool{New: func() any {
	b := make([]byte, bundle.CopyBufferSize)
	return &b
}}

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	buf := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// checkName rejects names that would escape the bundle's output.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("extract: invalid output name %q", name)
	}
	return nil
}

// DirSink writes files into <root>/<bundle>/, replacing existing files.
type DirSink struct {
	dir string
}

// NewDirSink creates the bundle directory under root.
func NewDirSink(root, bundleName string) (*DirSink, error) {
	if err := checkName(bundleName); err != nil {
		return nil, err
	}
	dir := filepath.Join(root, bundleName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirSink{dir: dir}, nil
}

// DirSinks returns a factory for DirSinks under root.
func DirSinks(root string) SinkFactory {
	return func(name string) (Sink, error) { return NewDirSink(root, name) }
}

// Dir returns the bundle directory.
func (s *DirSink) Dir() string { return s.dir }

func (s *DirSink) Put(ctx context.Context, name string, size int64, r io.Reader) (model.OutputEntry, error) {
	if err := checkName(name); err != nil {
		return model.OutputEntry{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.OutputEntry{}, err
	}
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return model.OutputEntry{}, err
	}
	n, err := copyBuffer(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n != size {
		err = fmt.Errorf("extract: wrote %d of %d bytes to %s", n, size, name)
	}
	if err != nil {
		return model.OutputEntry{}, err
	}
	return model.OutputEntry{Name: name}, nil
}

func (s *DirSink) Close() error { return nil }

// TarSink writes files as entries of <root>/<bundle>.tar with normalized
// headers, in the order they are put.
type TarSink struct {
	f  *os.File
	bw *bufio.Writer
	tw *tar.Writer
}

// NewTarSink creates <root>/<bundle>.tar.
func NewTarSink(root, bundleName string) (*TarSink, error) {
	if err := checkName(bundleName); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(root, bundleName+".tar"))
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, bundle.CopyBufferSize)
	return &TarSink{f: f, bw: bw, tw: tar.NewWriter(bw)}, nil
}

// TarSinks returns a factory for TarSinks under root.
func TarSinks(root string) SinkFactory {
	return func(name string) (Sink, error) { return NewTarSink(root, name) }
}

func (s *TarSink) Put(ctx context.Context, name string, size int64, r io.Reader) (model.OutputEntry, error) {
	if err := checkName(name); err != nil {
		return model.OutputEntry{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.OutputEntry{}, err
	}
	if err := archive.WriteFile(s.tw, name, size, r); err != nil {
		return model.OutputEntry{}, fmt.Errorf("extract: tar entry %s: %w", name, err)
	}
	return model.OutputEntry{Name: name}, nil
}

func (s *TarSink) Close() error {
	err := s.tw.Close()
	if ferr := s.bw.Flush(); err == nil {
		err = ferr
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// CASSink stores every file in a payload store and, on Close, writes the
// name → CID labels to <root>/<bundle>.cids.json.
type CASSink struct {
	cas       storage.CAS
	indexPath string
	mu        sync.Mutex
	labels    map[string]cid.Cid
}

// NewCASSink returns a sink storing into cas with its index under root.
func NewCASSink(cas storage.CAS, root, bundleName string) (*CASSink, error) {
	if err := checkName(bundleName); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CASSink{
		cas:       cas,
		indexPath: filepath.Join(root, bundleName+".cids.json"),
		labels:    map[string]cid.Cid{},
	}, nil
}

// CASSinks returns a factory for CASSinks sharing cas.
func CASSinks(cas storage.CAS, root string) SinkFactory {
	return func(name string) (Sink, error) { return NewCASSink(cas, root, name) }
}

// Labels returns a copy of the names stored so far.
func (s *CASSink) Labels() map[string]cid.Cid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]cid.Cid, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out
}

func (s *CASSink) Put(ctx context.Context, name string, size int64, r io.Reader) (model.OutputEntry, error) {
	if err := checkName(name); err != nil {
		return model.OutputEntry{}, err
	}
	id, err := s.cas.Put(ctx, io.LimitReader(r, size))
	if err != nil {
		return model.OutputEntry{}, fmt.Errorf("extract: storing %s: %w", name, err)
	}
	s.mu.Lock()
	s.labels[name] = id
	s.mu.Unlock()
	return model.OutputEntry{Name: name, CID: id.String()}, nil
}

func (s *CASSink) Close() error {
	tmp := s.indexPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = archive.WriteLabels(f, s.Labels())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.indexPath)
}

// DiscardSink drains every file. Used when only the report is wanted.
type DiscardSink struct{}

// DiscardSinks returns a factory for DiscardSinks.
func DiscardSinks() SinkFactory {
	return func(string) (Sink, error) { return DiscardSink{}, nil }
}

func (DiscardSink) Put(ctx context.Context, name string, _ int64, r io.Reader) (model.OutputEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.OutputEntry{}, err
	}
	if _, err := copyBuffer(io.Discard, r); err != nil {
		return model.OutputEntry{}, err
	}
	return model.OutputEntry{Name: name}, nil
}

func (DiscardSink) Close() error { return nil }
