// Package dispatch contains the public contracts shared by the relay: the
// registry that maps companion public keys to provider tokens, and the
// dispatchers that hand a payload to a push provider.
package dispatch

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Registry.Lookup when no registration exists.
	ErrNotFound = errors.New("registration not found")
	// ErrRegistrationFailed wraps any storage fault raised by Registry.Upsert.
	ErrRegistrationFailed = errors.New("registration failed")
)

// Registration is the single persisted entity: the latest provider token
// known for a companion public key.
type Registration struct {
	PubKey    string
	Token     string
	UpdatedAt time.Time
}

// Registry defines the contract for the identity -> token mapping.
// Implementations rely on their storage engine for per-identity atomicity;
// concurrent upserts for the same key resolve as last-write-wins.
type Registry interface {
	// Upsert inserts a registration or overwrites the token of an existing one.
	Upsert(ctx context.Context, pubKey, token string) error

	// Lookup returns the current registration for pubKey, or ErrNotFound.
	Lookup(ctx context.Context, pubKey string) (Registration, error)
}

// Dispatcher defines the contract for a component that delivers one data
// payload to one provider token (e.g. Google's FCM, Apple's APNS).
type Dispatcher interface {
	// Send delivers the payload and returns the provider-assigned message id.
	// Failures are reported as *DispatchError.
	Send(ctx context.Context, token string, data map[string]string) (string, error)
}
