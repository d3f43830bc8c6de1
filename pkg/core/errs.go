package core

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidYear      = errors.New("invalid year")
	ErrSuperseded       = errors.New("refresh superseded by a newer one")
)

// MalformedPayloadError reports which part of an update payload could not be used
type MalformedPayloadError struct {
	Field  string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrMalformedPayload, e.Reason)
	}
	return fmt.Sprintf("%v: field %q %s", ErrMalformedPayload, e.Field, e.Reason)
}

func (e *MalformedPayloadError) Unwrap() error {
	return ErrMalformedPayload
}
