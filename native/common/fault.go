package common

import "errors"

// Kind classifies a failed invocation. Every failure aborts the whole
// invocation; the kind exists so callers can bucket failures without parsing
// code strings.
type Kind uint8

const (
	KindPrecondition Kind = iota + 1
	KindAuthorization
	KindReplay
	KindStateConflict
	KindRateLimit
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindAuthorization:
		return "authorization"
	case KindReplay:
		return "replay"
	case KindStateConflict:
		return "state-conflict"
	case KindRateLimit:
		return "rate-limit"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Fault is a stable, code-addressable failure. The code string is part of the
// external contract: integrations match on the literal value, so codes are
// never reworded once shipped.
type Fault struct {
	kind Kind
	code string
}

// NewFault registers a failure with its classification and literal code.
func NewFault(kind Kind, code string) *Fault {
	return &Fault{kind: kind, code: code}
}

func (f *Fault) Error() string { return f.code }

// Code returns the stable error code string.
func (f *Fault) Code() string { return f.code }

// Kind returns the failure classification.
func (f *Fault) Kind() Kind { return f.kind }

// IsKind reports whether err is (or wraps) a Fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.kind == kind
}
