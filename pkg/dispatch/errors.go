package dispatch

import (
	"errors"
	"fmt"
)

// FailureClass is the coarse classification of a provider failure.
type FailureClass int

const (
	// Unknown covers failures the provider did not explain.
	Unknown FailureClass = iota
	// InvalidTarget means the token is malformed, expired or unregistered.
	InvalidTarget
	// Transient covers quota, availability and transport failures.
	Transient
)

func (c FailureClass) String() string {
	switch c {
	case InvalidTarget:
		return "invalid_target"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// DispatchError is returned by every Dispatcher on failure.
type DispatchError struct {
	Class FailureClass
	Err   error
}

// NewDispatchError classifies err.
func NewDispatchError(class FailureClass, err error) *DispatchError {
	return &DispatchError{Class: class, Err: err}
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed (%s): %v", e.Class, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ClassOf returns the FailureClass carried by err, or Unknown.
func ClassOf(err error) FailureClass {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Class
	}
	return Unknown
}
