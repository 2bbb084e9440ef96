package bundle

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// DefaultMetadataTag is the tag name that marks an item as ArFS metadata.
const DefaultMetadataTag = "ArFS"

// DefaultMaxMetadataBytes bounds how much of a metadata payload is parsed.
const DefaultMaxMetadataBytes = 1 << 20

var txIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// IsTxID reports whether s has the shape of a 43-character transaction or
// item identifier.
func IsTxID(s string) bool { return txIDPattern.MatchString(s) }

// Metadata is the JSON object carried by a metadata item. DataTxID is the
// linked payload identifier. It comes from untrusted payload content and is
// not checked against the bundle's items.
//
// Raw holds the object as it appeared in the payload; Fields is its decoded
// form for lookups.
type Metadata struct {
	DataTxID string
	Fields   map[string]any
	Raw      json.RawMessage
}

// HasLinkedPayload reports whether DataTxID is present and well formed.
func (m *Metadata) HasLinkedPayload() bool {
	return m != nil && IsTxID(m.DataTxID)
}

// MarshalJSON writes the original object with its key order and number
// text intact.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil || len(m.Raw) == 0 {
		return []byte("{}"), nil
	}
	return m.Raw, nil
}

// ParseMetadata parses a metadata payload. The payload must be a JSON object;
// a non-string dataTxId is ignored.
func ParseMetadata(payload []byte) (*Metadata, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, wrapError(KindMetadata, "ANS-META-001", "metadata payload is not a JSON object", err)
	}
	if fields == nil {
		return nil, newError(KindMetadata, "ANS-META-001", "metadata payload is null")
	}
	m := &Metadata{Fields: fields, Raw: append(json.RawMessage(nil), payload...)}
	if s, ok := fields["dataTxId"].(string); ok {
		m.DataTxID = s
	}
	return m, nil
}

// HasTag reports whether any tag carries name.
func HasTag(tags []Tag, name string) bool {
	for _, t := range tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func parseMetadataPayload(it *DataItem, limit int64) (*Metadata, error) {
	if it.PayloadSize() > limit {
		return nil, newError(KindMetadata, "ANS-META-002", fmt.Sprintf("metadata payload is %d bytes, limit %d", it.PayloadSize(), limit))
	}
	return ParseMetadata(it.PayloadBytes())
}
