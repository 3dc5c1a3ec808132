package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-pushrelay-service/internal/logctx"
	"github.com/tinywideclouds/go-pushrelay-service/internal/relay"
)

const maxBodyBytes = 64 << 10

// Relay is the subset of relay.Service the handlers depend on.
type Relay interface {
	Register(ctx context.Context, req relay.RegisterRequest) error
	Send(ctx context.Context, req relay.SendRequest) (string, error)
}

type RelayAPI struct {
	Relay  Relay
	Logger *slog.Logger
}

func NewRelayAPI(r Relay, logger *slog.Logger) *RelayAPI {
	return &RelayAPI{
		Relay:  r,
		Logger: logger.With("component", "RelayAPI"),
	}
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	PubKey     string `json:"pub_key"`
	FirebaseID string `json:"fb_id"`
}

// PushMessageRequest is the body of POST /pushmessage.
type PushMessageRequest struct {
	PubKey string            `json:"pub_key"`
	Msg    map[string]string `json:"msg"`
}

// Result is the body of every response.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

func (api *RelayAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logctx.From(ctx, api.Logger)

	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Warn("Register: JSON decode failed", "err", err)
		response.WriteJSON(w, http.StatusBadRequest, Result{Error: "invalid_request"})
		return
	}

	err := api.Relay.Register(ctx, relay.RegisterRequest{PubKey: req.PubKey, FirebaseID: req.FirebaseID})
	if err != nil {
		status, code := statusFor(err)
		response.WriteJSON(w, status, Result{Error: code})
		return
	}
	response.WriteJSON(w, http.StatusOK, Result{Success: true})
}

func (api *RelayAPI) PushMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logctx.From(ctx, api.Logger)

	var req PushMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Warn("PushMessage: JSON decode failed", "err", err)
		response.WriteJSON(w, http.StatusBadRequest, Result{Error: "invalid_request"})
		return
	}

	messageID, err := api.Relay.Send(ctx, relay.SendRequest{PubKey: req.PubKey, Msg: req.Msg})
	if err != nil {
		status, code := statusFor(err)
		response.WriteJSON(w, status, Result{Error: code})
		return
	}
	response.WriteJSON(w, http.StatusOK, Result{Success: true, MessageID: messageID})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, relay.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found"
	case errors.Is(err, relay.ErrDispatchFailed):
		return http.StatusBadGateway, "dispatch_failed"
	case errors.Is(err, relay.ErrRegistrationFailed):
		return http.StatusInternalServerError, "registration_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
