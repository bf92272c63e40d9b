package engine

import (
	"errors"
	"fmt"

	"audiosync/engine/pcm"
)

var (
	ErrPortClosed      = errors.New("audio out: port closed")
	ErrUnknownProperty = errors.New("audio out: unknown property")
	ErrReadOnly        = errors.New("audio out: property is read-only")
	ErrOutOfRange      = errors.New("audio out: value out of range")

	errZeroRate = errors.New("sink reported rate 0")
)

// NegotiationError is returned by Open when the sink refuses a format.
type NegotiationError struct {
	Format pcm.Format
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("audio out: sink refused %v: %v", e.Format, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

type invalidConfig struct {
	field string
}

func (e invalidConfig) Error() string {
	return "invalid " + e.field
}

func errInvalid(field string) error {
	return invalidConfig{field: field}
}
