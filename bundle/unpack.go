package bundle

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"xdao.co/ans104/compliance"
)

// CopyBufferSize is the chunk size used to stream payloads.
const CopyBufferSize = 64 << 10

// Options controls an unpack run. The zero value is usable.
type Options struct {
	// Mode Strict ends the run at the first item whose signature fails to
	// verify. Items with unknown or decode-only signature types are still
	// reported and never end the run.
	Mode compliance.Mode
	// Workers bounds concurrent item processing. Zero uses runtime.NumCPU;
	// one processes items sequentially on the caller's goroutine.
	Workers int
	// MetadataTag is the tag name marking metadata items (default "ArFS").
	MetadataTag string
	// MaxMetadataBytes bounds metadata payloads that are parsed as JSON.
	MaxMetadataBytes int64
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MetadataTag == "" {
		o.MetadataTag = DefaultMetadataTag
	}
	if o.MaxMetadataBytes <= 0 {
		o.MaxMetadataBytes = DefaultMaxMetadataBytes
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// VerifiedItem is the outcome for one descriptor.
//
// Item is nil when the signature type is unknown; ID then holds the declared
// id from the header. Err records the item-level decode or verification
// failure; MetadataErr records a metadata payload that could not be parsed.
type VerifiedItem struct {
	Index       int
	ID          ID
	DeclaredID  ID
	Item        *DataItem
	Verified    bool
	IsMetadata  bool
	Metadata    *Metadata
	Err         error
	MetadataErr error
}

// Unpack decodes and verifies every item of b, yielding results in header
// order.
//
// Item-level failures are reported on the VerifiedItem with a nil error. A
// non-nil error is terminal: a Format error in an item (yielded with a nil
// item), the first item failing verification in strict mode (yielded with that
// item), or cancellation of ctx. Unsupported signature types are item-level in
// both modes. Breaking out of the loop stops outstanding work; the
// iterator returns only after every worker has finished with b's buffer.
func Unpack(ctx context.Context, b *Bundle, opts Options) iter.Seq2[*VerifiedItem, error] {
	opts = opts.withDefaults()
	return func(yield func(*VerifiedItem, error) bool) {
		if opts.Workers == 1 || b.Len() <= 1 {
			unpackSequential(ctx, b, opts, yield)
			return
		}
		unpackParallel(ctx, b, opts, yield)
	}
}

// UnpackAll collects Unpack. On a terminal error it returns the items
// produced before it, including the failing item in strict mode.
func UnpackAll(ctx context.Context, b *Bundle, opts Options) ([]*VerifiedItem, error) {
	out := make([]*VerifiedItem, 0, b.Len())
	for vi, err := range Unpack(ctx, b, opts) {
		if vi != nil {
			out = append(out, vi)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func unpackSequential(ctx context.Context, b *Bundle, opts Options, yield func(*VerifiedItem, error) bool) {
	buf := make([]byte, CopyBufferSize)
	for _, d := range b.descriptors {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		vi, err := processItem(b, d, opts, buf)
		if !emit(vi, err, opts, yield) {
			return
		}
	}
}

type slot struct {
	vi   *VerifiedItem
	err  error
	done chan struct{}
}

func unpackParallel(ctx context.Context, b *Bundle, opts Options, yield func(*VerifiedItem, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	slots := make([]slot, b.Len())
	for i := range slots {
		slots[i].done = make(chan struct{})
	}
	bufs := sync.Pool{New: func() any {
		buf := make([]byte, CopyBufferSize)
		return &buf
	}}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		var g errgroup.Group
		g.SetLimit(opts.Workers)
		for i, d := range b.descriptors {
			s := &slots[i]
			g.Go(func() error {
				defer close(s.done)
				if err := ctx.Err(); err != nil {
					s.err = err
					return nil
				}
				buf := bufs.Get().(*[]byte)
				defer bufs.Put(buf)
				s.vi, s.err = processItem(b, d, opts, *buf)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		cancel()
		<-dispatched
	}()

	for i := range slots {
		<-slots[i].done
		if !emit(slots[i].vi, slots[i].err, opts, yield) {
			return
		}
	}
}

// emit yields one result and reports whether iteration continues.
func emit(vi *VerifiedItem, err error, opts Options, yield func(*VerifiedItem, error) bool) bool {
	if err != nil {
		opts.Logger.Error("bundle unpack aborted", "error", err)
		yield(nil, err)
		return false
	}
	if !vi.Verified {
		opts.Logger.Warn("item not verified", "index", vi.Index, "id", vi.ID.String(), "error", vi.Err)
		if opts.Mode == compliance.Strict && IsKind(vi.Err, KindVerification) {
			yield(vi, vi.Err)
			return false
		}
	} else {
		opts.Logger.Debug("item verified", "index", vi.Index, "id", vi.ID.String(), "metadata", vi.IsMetadata)
	}
	return yield(vi, nil)
}

// processItem decodes, identifies, verifies and classifies one item. The
// returned error is terminal for the bundle; item-level failures are stored
// on the VerifiedItem.
func processItem(b *Bundle, d ItemDescriptor, opts Options, buf []byte) (*VerifiedItem, error) {
	vi := &VerifiedItem{Index: d.Index, DeclaredID: d.DeclaredID}
	it, err := DecodeItem(b.buf, d)
	if err != nil {
		if IsKind(err, KindUnsupportedScheme) {
			vi.ID = d.DeclaredID
			vi.Err = err
			return vi, nil
		}
		return nil, err
	}
	vi.Item = it
	vi.ID = ItemID(it.Signature)
	vi.IsMetadata = HasTag(it.Tags, opts.MetadataTag)
	vi.Err = atItem(verifyItem(it, vi.ID, d.DeclaredID, buf), d.Index)
	vi.Verified = vi.Err == nil

	if vi.IsMetadata {
		md, err := parseMetadataPayload(it, opts.MaxMetadataBytes)
		if err != nil {
			vi.MetadataErr = atItem(err, d.Index)
		} else {
			vi.Metadata = md
		}
	}
	return vi, nil
}

func verifyItem(it *DataItem, id, declared ID, buf []byte) error {
	if err := checkLimits(it); err != nil {
		return err
	}
	digest, err := SigningDigest(it, buf)
	if err != nil {
		return err
	}
	if err := Verify(it, digest); err != nil {
		return err
	}
	if id != declared {
		return newError(KindVerification, "ANS-VER-004", "header id does not match the signature id "+id.String())
	}
	return nil
}
