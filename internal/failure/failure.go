// Package failure classifies handler errors so the router can report
// "completed" or "failed(kind)" without inspecting concrete error types.
package failure

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient marks a failed call to the control surface or a data
	// source. Eligible for fallback or bounded retry.
	KindTransient
	// KindNotFound marks a referenced player or record that does not exist.
	KindNotFound
	// KindConfiguration marks a malformed option. The affected feature is
	// disabled, never enabled by default.
	KindConfiguration
	// KindUnresolvedIdentity marks an event whose player has no derivable
	// steam id.
	KindUnresolvedIdentity
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindConfiguration:
		return "configuration"
	case KindUnresolvedIdentity:
		return "unresolved_identity"
	default:
		return "unknown"
	}
}

var ErrUnresolvedIdentity = errors.New("unresolved identity")

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transient(op string, err error) error {
	return New(KindTransient, op, err)
}

func NotFound(op string, err error) error {
	return New(KindNotFound, op, err)
}

func Configuration(op string, err error) error {
	return New(KindConfiguration, op, err)
}

func Unresolved(op string) error {
	return New(KindUnresolvedIdentity, op, ErrUnresolvedIdentity)
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
