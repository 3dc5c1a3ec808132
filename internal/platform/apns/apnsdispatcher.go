// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.example.companion)
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	Production   bool
}

// NewDispatcher creates a configured APNS dispatcher.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return newDispatcher(client, cfg.BundleID, logger), nil
}

func newDispatcher(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// Send pushes one silent background notification. Data keys become custom
// payload fields next to an "aps" dictionary that only sets content-available.
// APNs rejects priority 10 for such payloads, so background pushes go at
// priority 5, the highest it accepts for them.
func (d *Dispatcher) Send(ctx context.Context, deviceToken string, data map[string]string) (string, error) {
	builder := payload.NewPayload().ContentAvailable()
	for k, v := range data {
		builder.Custom(k, v)
	}

	n := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       d.topic,
		Payload:     builder,
		Priority:    apns2.PriorityLow,
		PushType:    apns2.PushTypeBackground,
	}

	res, err := d.client.PushWithContext(ctx, n)
	if err != nil {
		// Network/Transport Failure
		d.logger.Debug("APNs transport failed", "err", err)
		return "", dispatch.NewDispatchError(dispatch.Transient, err)
	}
	if res.Sent() {
		return res.ApnsID, nil
	}

	rejection := fmt.Errorf("apns rejected notification: status=%d reason=%s", res.StatusCode, res.Reason)
	return "", dispatch.NewDispatchError(classify(res), rejection)
}

// See: https://developer.apple.com/documentation/usernotifications/handling-notification-responses-from-apns
func classify(res *apns2.Response) dispatch.FailureClass {
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return dispatch.InvalidTarget
	case apns2.ReasonTooManyRequests, apns2.ReasonInternalServerError,
		apns2.ReasonServiceUnavailable, apns2.ReasonShutdown:
		return dispatch.Transient
	}
	if res.StatusCode == http.StatusGone {
		return dispatch.InvalidTarget
	}
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		return dispatch.Transient
	}
	return dispatch.Unknown
}
