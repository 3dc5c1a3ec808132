package relay

import "errors"

// Outcomes surfaced by the Service. Callers branch with errors.Is; storage
// and provider causes are logged here and never handed to the caller, except
// that ErrDispatchFailed also wraps the *dispatch.DispatchError so its class
// stays inspectable.
var (
	ErrValidation         = errors.New("invalid request")
	ErrRegistrationFailed = errors.New("registration failed")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDispatchFailed     = errors.New("dispatch failed")
	ErrInternal           = errors.New("internal error")
)
