// Package pipeline feeds send requests arriving over Pub/Sub into the relay.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// PushMessage is the Pub/Sub payload. It has the same shape as the body of
// POST /pushmessage.
type PushMessage struct {
	PubKey string            `json:"pub_key"`
	Msg    map[string]string `json:"msg"`
}

// PushMessageTransformer decodes and validates a raw Pub/Sub payload.
// Malformed messages return an error without skip, so the streaming service
// Nacks them and the subscription's dead-letter policy takes them. skip would
// Ack and drop them.
func PushMessageTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*PushMessage, bool, error) {
	var req PushMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal push message %s: %w", msg.ID, err)
	}
	if strings.TrimSpace(req.PubKey) == "" {
		return nil, false, fmt.Errorf("push message %s: missing pub_key", msg.ID)
	}
	if req.Msg == nil {
		return nil, false, fmt.Errorf("push message %s: missing msg", msg.ID)
	}
	return &req, false, nil
}
