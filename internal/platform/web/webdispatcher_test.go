package web_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-pushrelay-service/internal/platform/web"
	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// newSubscriptionToken builds a browser-like subscription with real P-256
// keys so payload encryption succeeds.
func newSubscriptionToken(t *testing.T, endpoint string) string {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]any{
		"endpoint": endpoint,
		"keys": map[string]string{
			"p256dh": base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
			"auth":   base64.RawURLEncoding.EncodeToString(auth),
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestSend_Lifecycle(t *testing.T) {
	// 1. Setup Mock Push Service (Simulates Google/Mozilla Push Server)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify VAPID and urgency headers
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "high", r.Header.Get("Urgency"))

		switch r.URL.Path {
		case "/success":
			w.Header().Set("Location", "https://push.example/m/42")
			w.WriteHeader(http.StatusCreated)
		case "/expired":
			w.WriteHeader(http.StatusGone)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer mockServer.Close()

	vapidPriv, vapidPub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	dispatcher := web.NewDispatcher(web.Config{
		PrivateKey:      vapidPriv,
		PublicKey:       vapidPub,
		SubscriberEmail: "test-runner@example.com",
		HTTPClient:      mockServer.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	data := map[string]string{"text": "hi"}

	t.Run("Created returns Location as message id", func(t *testing.T) {
		id, err := dispatcher.Send(ctx, newSubscriptionToken(t, mockServer.URL+"/success"), data)
		require.NoError(t, err)
		assert.Equal(t, "https://push.example/m/42", id)
	})

	t.Run("Gone is InvalidTarget", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, newSubscriptionToken(t, mockServer.URL+"/expired"), data)
		assert.Equal(t, dispatch.InvalidTarget, dispatch.ClassOf(err))
	})

	t.Run("Unavailable is Transient", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, newSubscriptionToken(t, mockServer.URL+"/busy"), data)
		assert.Equal(t, dispatch.Transient, dispatch.ClassOf(err))
	})

	t.Run("Other rejections are Unknown", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, newSubscriptionToken(t, mockServer.URL+"/bad"), data)
		assert.Equal(t, dispatch.Unknown, dispatch.ClassOf(err))
	})

	t.Run("Token that is not a subscription is InvalidTarget", func(t *testing.T) {
		_, err := dispatcher.Send(ctx, "fcm-style-token", data)
		assert.Equal(t, dispatch.InvalidTarget, dispatch.ClassOf(err))
	})
}

func TestParseSubscription(t *testing.T) {
	_, err := web.ParseSubscription(`{"endpoint": "https://valid.com"}`)
	assert.Error(t, err)

	sub, err := web.ParseSubscription(`{"endpoint":"https://e","keys":{"p256dh":"a","auth":"b"}}`)
	require.NoError(t, err)
	assert.Equal(t, "https://e", sub.Endpoint)
}
