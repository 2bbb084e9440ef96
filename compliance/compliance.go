// Package compliance selects how an unpack run treats items that fail
// verification.
package compliance

import "fmt"

// Mode selects how aggressively unverified items are rejected.
//
// Permissive reports every item with its verification status and keeps
// going. Strict stops at the first item whose signature fails to verify.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

func (m Mode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "permissive" or "strict". The empty string is Permissive.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("invalid mode %q (want permissive or strict)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
