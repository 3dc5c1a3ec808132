// Package fcm delivers relay payloads through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"errors"
	"net"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it; tests substitute a mock.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type Dispatcher struct {
	client MessagingClient
}

func NewDispatcher(client MessagingClient) *Dispatcher {
	return &Dispatcher{client: client}
}

// Send delivers a data-only message. Android gets high priority; the APNs
// bridge sends a background push at priority 5, which is what APNs accepts
// for content-available-only payloads.
func (d *Dispatcher) Send(ctx context.Context, token string, data map[string]string) (string, error) {
	msg := &messaging.Message{
		Token: token,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "5",
				"apns-push-type": "background",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{ContentAvailable: true},
			},
		},
	}

	id, err := d.client.Send(ctx, msg)
	if err != nil {
		return "", dispatch.NewDispatchError(classify(err), err)
	}
	return id, nil
}

func classify(err error) dispatch.FailureClass {
	switch {
	case messaging.IsRegistrationTokenNotRegistered(err),
		messaging.IsInvalidArgument(err),
		messaging.IsSenderIDMismatch(err):
		// The token is garbage
		return dispatch.InvalidTarget
	case messaging.IsQuotaExceeded(err),
		messaging.IsUnavailable(err),
		messaging.IsInternal(err):
		return dispatch.Transient
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return dispatch.Transient
	}
	return dispatch.Unknown
}
