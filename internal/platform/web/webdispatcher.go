// Package web delivers relay payloads over the Web Push protocol (VAPID).
// The registered token is the browser's PushSubscription serialized as JSON.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// Config holds the VAPID identity of this relay.
type Config struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
	// HTTPClient overrides the client used to reach push services.
	HTTPClient *http.Client
}

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: client,
	}
}

// ParseSubscription decodes a token into a push subscription.
func ParseSubscription(token string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, fmt.Errorf("token is not a push subscription: %w", err)
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, errors.New("incomplete push subscription")
	}
	return &sub, nil
}

// Send encrypts data for the subscription and posts it to the push service.
func (d *Dispatcher) Send(ctx context.Context, token string, data map[string]string) (string, error) {
	sub, err := ParseSubscription(token)
	if err != nil {
		return "", dispatch.NewDispatchError(dispatch.InvalidTarget, err)
	}

	payloadBytes, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return "", dispatch.NewDispatchError(dispatch.Unknown, fmt.Errorf("failed to marshal payload: %w", err))
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, sub, &webpush.Options{
		Subscriber:      d.subscriber,
		VAPIDPublicKey:  d.publicKey,
		VAPIDPrivateKey: d.privateKey,
		TTL:             60,
		Urgency:         webpush.UrgencyHigh,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		// Transport error (DNS, Timeout) or local encryption failure
		d.logger.Debug("WebPush send error", "endpoint", sub.Endpoint, "err", err)
		return "", dispatch.NewDispatchError(dispatch.Transient, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, nil
		}
		return uuid.NewString(), nil
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		// Subscription is dead
		return "", dispatch.NewDispatchError(dispatch.InvalidTarget, fmt.Errorf("push service status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", dispatch.NewDispatchError(dispatch.Transient, fmt.Errorf("push service status %d", resp.StatusCode))
	default:
		d.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return "", dispatch.NewDispatchError(dispatch.Unknown, fmt.Errorf("push service status %d", resp.StatusCode))
	}
}
