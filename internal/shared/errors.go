package shared

import (
	"errors"
	"fmt"
)

// Kind classifies service errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
)

// Error carries a Kind together with a descriptive message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = E(KindNotFound, "not found")
	// ErrUnbalanced indicates a journal entry whose debits and credits differ.
	ErrUnbalanced = E(KindConflict, "debtors and creditors do not balance")
	// ErrBeatReplayed indicates a beat date that was already processed.
	ErrBeatReplayed = E(KindConflict, "beat date already processed")
)
