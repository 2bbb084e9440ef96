package model

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Report encodings accepted by EncodeReport.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// cborMode uses Core Deterministic Encoding so equal reports encode to equal
// bytes. Field names follow the json tags.
var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("model: CBOR encoder initialization failed: " + err.Error())
	}
}

// EncodeReport writes v to w as tab-indented JSON or deterministic CBOR.
func EncodeReport(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "\t")
		return enc.Encode(v)
	case FormatCBOR:
		return cborMode.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("unknown report format %q (want json or cbor)", format)
	}
}

// DecodeCBORReports reads reports written by EncodeReport in CBOR form.
func DecodeCBORReports(r io.Reader) ([]*BundleReport, error) {
	var out []*BundleReport
	if err := cbor.NewDecoder(r).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
