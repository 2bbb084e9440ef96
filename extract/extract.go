package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"xdao.co/ans104/bundle"
	"xdao.co/ans104/compliance"
	"xdao.co/ans104/model"
	"xdao.co/ans104/source"
)

// Options controls ExtractFile and ExtractAll.
type Options struct {
	Unpack               bundle.Options
	IncludeUnverified    bool
	MaxDecompressedBytes int64
	// ParallelBundles bounds concurrent bundles in ExtractAll. Default 1.
	ParallelBundles int
	Logger          *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// ExtractFile unpacks the bundle at path into the sink newSink opens for it.
//
// The report lists every item the unpacker produced. A terminal unpack error
// is recorded on the report and also returned; items before it were written.
func ExtractFile(ctx context.Context, path string, newSink SinkFactory, opts Options) (*model.BundleReport, error) {
	name := source.Name(path)
	log := opts.logger().With("bundle", name)
	report := &model.BundleReport{Name: name, Compliance: complianceOf(opts.Unpack.Mode), Items: []model.ItemReport{}}

	buf, err := source.Open(path, source.Options{MaxDecompressedBytes: opts.MaxDecompressedBytes})
	if err != nil {
		report.Error = model.NewError(model.ErrIO, err.Error())
		return report, fmt.Errorf("%s: %w", name, err)
	}
	defer buf.Close()

	b, err := bundle.Open(buf.Bytes())
	if err != nil {
		report.Error = model.FromError(err)
		log.Error("bundle header rejected", "error", err)
		return report, fmt.Errorf("%s: %w", name, err)
	}
	log.Info("unpacking bundle", "items", b.Len(), "mapped", buf.Mapped())

	sink, err := newSink(name)
	if err != nil {
		report.Error = model.NewError(model.ErrIO, err.Error())
		return report, fmt.Errorf("%s: %w", name, err)
	}

	w := &Writer{IncludeUnverified: opts.IncludeUnverified, Logger: log}
	uopts := opts.Unpack
	uopts.Logger = log
	runErr := func() error {
		for vi, err := range bundle.Unpack(ctx, b, uopts) {
			if vi != nil {
				r := model.NewItemReport(vi)
				entries, written, werr := w.WriteItem(ctx, sink, vi)
				r.Output = entries
				report.Add(r)
				if !written {
					report.Skipped++
				}
				if werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
		}
		return nil
	}()
	if cerr := sink.Close(); runErr == nil {
		runErr = cerr
	}
	if runErr != nil {
		report.Error = model.FromError(runErr)
		return report, fmt.Errorf("%s: %w", name, runErr)
	}
	log.Info("bundle unpacked", "verified", report.Verified, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// ExtractAll runs ExtractFile over paths with at most opts.ParallelBundles at
// once. One bundle failing does not stop the others; the returned reports are
// in path order and the error joins every bundle error.
func ExtractAll(ctx context.Context, paths []string, newSink SinkFactory, opts Options) ([]*model.BundleReport, error) {
	limit := opts.ParallelBundles
	if limit < 1 {
		limit = 1
	}
	reports := make([]*model.BundleReport, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			reports[i], errs[i] = ExtractFile(ctx, path, newSink, opts)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

func complianceOf(m compliance.Mode) model.ComplianceMode {
	if m == compliance.Strict {
		return model.ComplianceStrict
	}
	return model.CompliancePermissive
}
