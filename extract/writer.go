// Package extract writes the contents of unpacked bundles: linked payloads of
// metadata items and a JSON record of metadata and tags for every item.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"xdao.co/ans104/bundle"
	"xdao.co/ans104/model"
)

const (
	recordSuffix     = ".json"
	tagsRecordSuffix = ".TAGS.json"
)

// Writer maps verified items onto sink files:
//
//   - a metadata item with a well-formed dataTxId writes its payload as
//     <dataTxId> and its record as <id>.json;
//   - every other item writes its record as <id>.TAGS.json.
//
// Records are tab-indented JSON objects {"metadata": ..., "tags": ...}.
type Writer struct {
	// IncludeUnverified writes items that failed verification.
	IncludeUnverified bool
	Logger            *slog.Logger
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.Logger
}

// WriteItem writes vi to sink. It returns the entries written and whether
// the item was written at all.
func (w *Writer) WriteItem(ctx context.Context, sink Sink, vi *bundle.VerifiedItem) ([]model.OutputEntry, bool, error) {
	id := vi.ID.String()
	if vi.Item == nil {
		w.logger().Warn("skipping undecodable item", "index", vi.Index, "id", id)
		return nil, false, nil
	}
	if bundle.IsKind(vi.Err, bundle.KindUnsupportedScheme) {
		w.logger().Info("skipping item with unsupported signature type", "index", vi.Index, "id", id)
		return nil, false, nil
	}
	if !vi.Verified && !w.IncludeUnverified {
		w.logger().Info("skipping unverified item", "index", vi.Index, "id", id)
		return nil, false, nil
	}

	record, err := MarshalRecord(model.NewRecord(vi))
	if err != nil {
		return nil, false, err
	}

	if vi.IsMetadata && vi.Metadata.HasLinkedPayload() {
		it := vi.Item
		payload, err := sink.Put(ctx, vi.Metadata.DataTxID, it.PayloadSize(), it.PayloadReader())
		if err != nil {
			return nil, false, err
		}
		rec, err := sink.Put(ctx, id+recordSuffix, int64(len(record)), bytes.NewReader(record))
		if err != nil {
			return []model.OutputEntry{payload}, false, err
		}
		w.logger().Debug("wrote metadata item", "id", id, "dataTxId", vi.Metadata.DataTxID, "bytes", it.PayloadSize())
		return []model.OutputEntry{payload, rec}, true, nil
	}

	if vi.IsMetadata {
		w.logger().Warn("metadata item has no usable dataTxId", "id", id, "error", vi.MetadataErr)
	}
	rec, err := sink.Put(ctx, id+tagsRecordSuffix, int64(len(record)), bytes.NewReader(record))
	if err != nil {
		return nil, false, err
	}
	return []model.OutputEntry{rec}, true, nil
}

// MarshalRecord renders a record as tab-indented JSON without HTML escaping
// or a trailing newline.
func MarshalRecord(r model.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
