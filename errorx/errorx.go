// Package errorx defines the closed set of error kinds every operation of
// the bot reports. Callers switch on Kind instead of matching error strings.
package errorx

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the command boundary.
type Kind uint8

const (
	// KindInternal is an invariant violation or an unexpected store failure.
	KindInternal Kind = iota
	// KindValidation is malformed input that slipped past the command parser.
	KindValidation
	// KindQuota is a cardinality limit reached.
	KindQuota
	// KindConflict is a duplicate or a state that forbids the change.
	KindConflict
	// KindNotFound is an unknown chat, group, alias or member reference.
	KindNotFound
	// KindAuthorization is a denied capability.
	KindAuthorization
	// KindMalformedToken is an undecodable callback payload.
	KindMalformedToken
	// KindBusy is a lock wait that ran out of time. The caller may retry.
	KindBusy
)

var kindNames = [...]string{
	KindInternal:       "internal",
	KindValidation:     "validation",
	KindQuota:          "quota",
	KindConflict:       "conflict",
	KindNotFound:       "not_found",
	KindAuthorization:  "authorization",
	KindMalformedToken: "malformed_token",
	KindBusy:           "busy",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Retryable reports whether the failed operation may succeed if repeated as is.
func (k Kind) Retryable() bool {
	return k == KindBusy
}

// Error is a classified error. It may wrap a lower level cause.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err, keeping it reachable through errors.Is and errors.As.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
