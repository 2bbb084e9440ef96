package model

import (
	"encoding/base64"

	"xdao.co/ans104/bundle"
)

// Record is the JSON document written for each extracted item: the parsed
// metadata object ({} for non-metadata items) and the item's tags flattened
// to a name → value map.
type Record struct {
	Metadata *bundle.Metadata  `json:"metadata"`
	Tags     map[string]string `json:"tags"`
}

// NewRecord builds the record for vi.
func NewRecord(vi *bundle.VerifiedItem) Record {
	r := Record{Metadata: vi.Metadata, Tags: map[string]string{}}
	if r.Metadata == nil {
		r.Metadata = &bundle.Metadata{}
	}
	if vi.Item != nil {
		r.Tags = bundle.TagMap(vi.Item.Tags)
	}
	return r
}

type ComplianceMode string

const (
	CompliancePermissive ComplianceMode = "permissive"
	ComplianceStrict     ComplianceMode = "strict"
)

// ItemReport describes one item of a bundle.
type ItemReport struct {
	Index         int           `json:"index"`
	ID            string        `json:"id"`
	DeclaredID    string        `json:"declaredId,omitempty"`
	SignatureType string        `json:"signatureType,omitempty"`
	Owner         string        `json:"owner,omitempty"`
	Target        string        `json:"target,omitempty"`
	Anchor        string        `json:"anchor,omitempty"`
	Tags          []bundle.Tag  `json:"tags"`
	PayloadSize   int64         `json:"payloadSize"`
	Verified      bool          `json:"verified"`
	IsMetadata    bool          `json:"isMetadata"`
	DataTxID      string        `json:"dataTxId,omitempty"`
	Error         *CodedError   `json:"error,omitempty"`
	MetadataError *CodedError   `json:"metadataError,omitempty"`
	Output        []OutputEntry `json:"output,omitempty"`
}

// OutputEntry names one thing written for an item. CID is set when the
// payload went to a content-addressed store.
type OutputEntry struct {
	Name string `json:"name"`
	CID  string `json:"cid,omitempty"`
}

// BundleReport summarizes one bundle.
type BundleReport struct {
	Name       string         `json:"name"`
	Compliance ComplianceMode `json:"compliance"`
	Items      []ItemReport   `json:"items"`
	Verified   int            `json:"verified"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Error      *CodedError    `json:"error,omitempty"`
}

// NewItemReport projects vi onto its report.
func NewItemReport(vi *bundle.VerifiedItem) ItemReport {
	r := ItemReport{
		Index:         vi.Index,
		ID:            vi.ID.String(),
		Tags:          []bundle.Tag{},
		Verified:      vi.Verified,
		IsMetadata:    vi.IsMetadata,
		Error:         FromError(vi.Err),
		MetadataError: FromError(vi.MetadataErr),
	}
	if vi.DeclaredID != vi.ID {
		r.DeclaredID = vi.DeclaredID.String()
	}
	if it := vi.Item; it != nil {
		r.SignatureType = it.SignatureType.String()
		r.Owner = base64.RawURLEncoding.EncodeToString(it.Owner)
		r.Target = encodeOptional(it.Target)
		r.Anchor = encodeOptional(it.Anchor)
		if len(it.Tags) > 0 {
			r.Tags = it.Tags
		}
		r.PayloadSize = it.PayloadSize()
	}
	if vi.Metadata != nil {
		r.DataTxID = vi.Metadata.DataTxID
	}
	return r
}

// Add appends an item report and updates the counters. Items with an
// unsupported signature type count as neither verified nor failed; the
// extractor counts them as skipped.
func (b *BundleReport) Add(r ItemReport) {
	b.Items = append(b.Items, r)
	switch {
	case r.Verified:
		b.Verified++
	case r.Unsupported():
		// not a failure
	default:
		b.Failed++
	}
}

// Unsupported reports whether the item carries a signature type this
// build cannot verify.
func (r ItemReport) Unsupported() bool {
	return r.Error != nil && r.Error.Code == ErrUnsupportedScheme
}

func encodeOptional(b []byte) string {
	if b == nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
