package bundle

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindFormat is a malformed or truncated binary structure. It is fatal to
	// the whole bundle.
	KindFormat Kind = "Format"
	// KindUnsupportedScheme is an unknown signature scheme or one without a
	// verifier. It is fatal to that item only.
	KindUnsupportedScheme Kind = "UnsupportedScheme"
	// KindVerification is a signature or identity mismatch. It is fatal only
	// in strict mode.
	KindVerification Kind = "Verification"
	// KindMetadata is a metadata item whose payload is not a JSON object.
	KindMetadata Kind = "Metadata"
	// KindIO is a failure reading or writing bytes outside the decoder.
	KindIO Kind = "IO"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g. ANS-HDR-002, ANS-ITEM-004) naming the
// violated rule. Index is the descriptor index of the offending item, or -1
// for bundle-level errors.
type Error struct {
	Kind    Kind
	RuleID  string
	Index   int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Index >= 0 {
		msg = fmt.Sprintf("item %d: %s", e.Index, msg)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) *Error {
	return &Error{Kind: kind, RuleID: ruleID, Index: -1, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) *Error {
	e := newError(kind, ruleID, msg)
	e.Cause = cause
	return e
}

// atItem attributes err to a descriptor index. Non-structured errors become
// KindIO.
func atItem(err error, index int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		c := *e
		c.Index = index
		return &c
	}
	return &Error{Kind: KindIO, RuleID: "ANS-IO-001", Index: index, Message: "reading item", Cause: err}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
