// Package relay holds the two user-facing flows of the push relay:
// registering a companion device and sending it a payload.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinywideclouds/go-pushrelay-service/internal/logctx"
	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// RegisterRequest binds a companion public key to a provider token.
type RegisterRequest struct {
	PubKey     string
	FirebaseID string
}

// SendRequest addresses a data payload to a companion public key.
type SendRequest struct {
	PubKey string
	Msg    map[string]string
}

type Service struct {
	registry   dispatch.Registry
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
}

func NewService(registry dispatch.Registry, dispatcher dispatch.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// opLogger prefers the request-scoped logger carried by ctx and tags it
// with this component and the operation.
func (s *Service) opLogger(ctx context.Context, op, pubKey string) *slog.Logger {
	return logctx.From(ctx, s.logger).With("component", "RelayService", "op", op, "pub_key", pubKey)
}

// Register validates the request and upserts the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	log := s.opLogger(ctx, "register", req.PubKey)

	if err := validateRegister(req); err != nil {
		log.Warn("Registration rejected", "err", err)
		return err
	}

	log.Debug("Registering device")
	if err := s.registry.Upsert(ctx, req.PubKey, req.FirebaseID); err != nil {
		log.Error("Failed to register device", "err", err)
		return ErrRegistrationFailed
	}
	log.Info("Registration complete")
	return nil
}

// Send resolves the public key and hands the payload to the dispatcher. An
// unknown key fails before any provider call. The registry is never written
// on this path.
func (s *Service) Send(ctx context.Context, req SendRequest) (string, error) {
	log := s.opLogger(ctx, "send", req.PubKey)

	if err := validateSend(req); err != nil {
		log.Warn("Send rejected", "err", err)
		return "", err
	}

	reg, err := s.registry.Lookup(ctx, req.PubKey)
	if errors.Is(err, dispatch.ErrNotFound) {
		log.Info("No registration for public key")
		return "", ErrDeviceNotFound
	}
	if err != nil {
		log.Error("Registry lookup failed", "err", err)
		return "", ErrInternal
	}

	messageID, err := s.dispatcher.Send(ctx, reg.Token, req.Msg)
	if err != nil {
		var de *dispatch.DispatchError
		if !errors.As(err, &de) {
			de = dispatch.NewDispatchError(dispatch.Unknown, err)
		}
		log.Error("Dispatch failed", "class", de.Class.String(), "err", de.Err)
		return "", fmt.Errorf("%w: %w", ErrDispatchFailed, de)
	}

	log.Info("Dispatched", "message_id", messageID)
	return messageID, nil
}

func validateRegister(req RegisterRequest) error {
	var missing []string
	if strings.TrimSpace(req.PubKey) == "" {
		missing = append(missing, "pub_key")
	}
	if strings.TrimSpace(req.FirebaseID) == "" {
		missing = append(missing, "fb_id")
	}
	return missingFields(missing)
}

func validateSend(req SendRequest) error {
	var missing []string
	if strings.TrimSpace(req.PubKey) == "" {
		missing = append(missing, "pub_key")
	}
	if req.Msg == nil {
		missing = append(missing, "msg")
	}
	return missingFields(missing)
}

func missingFields(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(fields, ", "))
}
