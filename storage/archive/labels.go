package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/ans104/storage"
)

// labelList validates labels and returns them sorted by name.
func labelList(labels map[string]cid.Cid) ([]indexLabel, error) {
	out := make([]indexLabel, 0, len(labels))
	for name, id := range labels {
		if name == "" {
			return nil, fmt.Errorf("archive: empty label name")
		}
		if !id.Defined() {
			return nil, storage.ErrInvalidCID
		}
		out = append(out, indexLabel{Name: name, CID: id.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WriteLabels writes labels as a version-1 index without a block list. The
// cas sink uses it for <bundle>.cids.json.
func WriteLabels(w io.Writer, labels map[string]cid.Cid) error {
	list, err := labelList(labels)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(index{Version: FormatVersion, Labels: list})
}

// ReadLabels reads the labels of an index.json or of a WriteLabels document.
func ReadLabels(r io.Reader) (map[string]cid.Cid, error) {
	var doc index
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("archive: reading labels: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("archive: index version %d, want %d", doc.Version, FormatVersion)
	}
	out := make(map[string]cid.Cid, len(doc.Labels))
	for _, l := range doc.Labels {
		id, err := cid.Decode(l.CID)
		if err != nil || !id.Defined() {
			return nil, fmt.Errorf("archive: label %q: %w", l.Name, storage.ErrInvalidCID)
		}
		out[l.Name] = id
	}
	return out, nil
}
