package model

import (
	"errors"
	"fmt"

	"xdao.co/ans104/bundle"
	"xdao.co/ans104/storage"
)

type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrFormat            ErrorCode = "FORMAT"
	ErrUnsupportedScheme ErrorCode = "UNSUPPORTED_SCHEME"
	ErrVerification      ErrorCode = "VERIFICATION"
	ErrMetadata          ErrorCode = "METADATA"
	ErrIO                ErrorCode = "IO"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrCIDMismatch       ErrorCode = "CID_MISMATCH"
	ErrInternal          ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
// Rule carries the bundle rule identifier when the error came from decoding or
// verification.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Rule    string    `json:"rule,omitempty"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Rule != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

var kindCodes = map[bundle.Kind]ErrorCode{
	bundle.KindFormat:            ErrFormat,
	bundle.KindUnsupportedScheme: ErrUnsupportedScheme,
	bundle.KindVerification:      ErrVerification,
	bundle.KindMetadata:          ErrMetadata,
	bundle.KindIO:                ErrIO,
}

// FromError projects err onto a CodedError. A nil err yields nil.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	var be *bundle.Error
	if errors.As(err, &be) {
		code, ok := kindCodes[be.Kind]
		if !ok {
			code = ErrInternal
		}
		return &CodedError{Code: code, Rule: be.RuleID, Message: err.Error()}
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(ErrNotFound, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch), errors.Is(err, storage.ErrImmutable):
		return NewError(ErrCIDMismatch, err.Error())
	}
	return NewError(ErrInternal, err.Error())
}
