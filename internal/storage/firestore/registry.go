package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

const devicesCollection = "devices"

// FirestoreStore implements dispatch.Registry using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	PubKey    string    `firestore:"pub_key"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// Upsert replaces the whole document; Firestore applies single-document
// writes atomically, so the last Set wins.
func (s *FirestoreStore) Upsert(ctx context.Context, pubKey, token string) error {
	if pubKey == "" || token == "" {
		return fmt.Errorf("%w: pub key and token are required", dispatch.ErrRegistrationFailed)
	}
	record := deviceRecord{
		PubKey:    pubKey,
		Token:     token,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.deviceRef(pubKey).Set(ctx, record); err != nil {
		return fmt.Errorf("%w: firestore set: %v", dispatch.ErrRegistrationFailed, err)
	}
	return nil
}

func (s *FirestoreStore) Lookup(ctx context.Context, pubKey string) (dispatch.Registration, error) {
	doc, err := s.deviceRef(pubKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return dispatch.Registration{}, dispatch.ErrNotFound
		}
		return dispatch.Registration{}, fmt.Errorf("firestore get failed: %w", err)
	}

	var record deviceRecord
	if err := doc.DataTo(&record); err != nil {
		return dispatch.Registration{}, fmt.Errorf("decode device record: %w", err)
	}
	if record.Token == "" {
		return dispatch.Registration{}, dispatch.ErrNotFound
	}
	return dispatch.Registration{
		PubKey:    pubKey,
		Token:     record.Token,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

// deviceRef: devices/{sha256(pubKey)}
// Public keys can contain '/', which Firestore forbids in document IDs.
func (s *FirestoreStore) deviceRef(pubKey string) *firestore.DocumentRef {
	return s.client.Collection(devicesCollection).Doc(hashKey(pubKey))
}

func hashKey(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:])
}
