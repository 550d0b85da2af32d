package trinity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDamping indicates a custom damping value that is missing,
	// non-numeric or outside [MinDamping, MaxDamping].
	ErrInvalidDamping = errors.New("trinity: invalid damping value")

	// ErrUnknownPreset indicates a preset name outside the enumerated set.
	ErrUnknownPreset = errors.New("trinity: unknown preset")

	// ErrClosed indicates a dispatch after the panel was torn down.
	ErrClosed = errors.New("trinity: dispatcher closed")

	// ErrEmptyResult indicates a fetcher returned neither a result nor an error.
	ErrEmptyResult = errors.New("trinity: fetcher returned no result")
)

// ValidationError describes rejected custom input.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("damping: %s", e.Reason)
	}
	return fmt.Sprintf("damping %q: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDamping
}

// TransportError wraps a fetch failure with the sequence number of the
// request that produced it.
type TransportError struct {
	Seq     uint64
	Wrapped error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request #%d: %v", e.Seq, e.Wrapped)
}

func (e *TransportError) Unwrap() error {
	return e.Wrapped
}
