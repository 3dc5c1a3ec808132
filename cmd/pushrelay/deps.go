package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	firebase "firebase.google.com/go/v4"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-pushrelay-service/internal/platform/apns"
	"github.com/tinywideclouds/go-pushrelay-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-pushrelay-service/internal/platform/retry"
	"github.com/tinywideclouds/go-pushrelay-service/internal/platform/web"
	"github.com/tinywideclouds/go-pushrelay-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-pushrelay-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-pushrelay-service/internal/storage/sqlite"
	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
	"github.com/tinywideclouds/go-pushrelay-service/pushrelay/config"
)

// cleanup collects Close calls for the process's lifetime.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func googleOptions(cfg *config.Config) []option.ClientOption {
	if cfg.FirebaseCredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseCredentialsFile)}
}

func openSQLite(cfg *config.Config) (*sqlite.Store, error) {
	return sqlite.Open(sqlite.Options{
		Path:         cfg.Store.SQLitePath,
		BusyTimeout:  cfg.Store.BusyTimeout,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
}

// openStore returns the configured backing store. A sqlite store is migrated
// before it is handed out.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, c *cleanup) (dispatch.Registry, error) {
	switch cfg.Store.Driver {
	case config.DriverFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, googleOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		c.add(func() { _ = fsClient.Close() })
		logger.Info("Registry initialized", "type", "firestore")
		return fsStore.NewFirestoreStore(fsClient), nil

	default:
		store, err := openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		c.add(func() { _ = store.Close() })
		applied, err := store.Migrate(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("Registry initialized", "type", "sqlite", "path", cfg.Store.SQLitePath, "migrations_applied", applied)
		return store, nil
	}
}

// newRegistry wraps the backing store with the Redis cache when enabled.
func newRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger, c *cleanup) (dispatch.Registry, error) {
	registry, err := openStore(ctx, cfg, logger, c)
	if err != nil {
		return nil, err
	}
	if !cfg.Redis.Enabled {
		return registry, nil
	}

	logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
	redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	c.add(func() { _ = redisClient.Close() })
	logger.Info("Registry upgraded", "type", "redis_cached", "ttl", cfg.Redis.TTL)
	return cache.NewCachedRegistry(registry, redisClient, cfg.Redis.TTL, logger), nil
}

// newDispatcher builds the provider dispatcher and, when enabled, wraps it
// with retry, circuit breaking and rate limiting.
func newDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Dispatcher, error) {
	var d dispatch.Dispatcher

	switch cfg.Provider {
	case config.ProviderAPNS:
		keyBytes, err := os.ReadFile(cfg.APNS.P8KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read apns p8 key: %w", err)
		}
		apnsDispatcher, err := apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(keyBytes),
			Production:   cfg.APNS.Production,
		}, logger)
		if err != nil {
			return nil, err
		}
		d = apnsDispatcher

	case config.ProviderWeb:
		if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
			return nil, fmt.Errorf("vapid keys are required for the web provider")
		}
		d = web.NewDispatcher(web.Config{
			PublicKey:       cfg.Vapid.PublicKey,
			PrivateKey:      cfg.Vapid.PrivateKey,
			SubscriberEmail: cfg.Vapid.SubscriberEmail,
		}, logger)

	default:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, googleOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("initialize firebase app: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("create fcm messaging client: %w", err)
		}
		d = fcm.NewDispatcher(fcmMessaging)
	}
	logger.Info("Dispatcher initialized", "provider", cfg.Provider)

	if !cfg.Retry.Enabled {
		return d, nil
	}
	logger.Info("Dispatcher upgraded", "retry_max_attempts", cfg.Retry.MaxAttempts, "trip_after", cfg.Retry.TripAfter)
	return retry.NewDispatcher(d, retry.Config{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		TripAfter:       cfg.Retry.TripAfter,
		Cooldown:        cfg.Retry.Cooldown,
		RatePerSecond:   cfg.Retry.RatePerSecond,
	}, logger), nil
}

// newIngestionConsumer ensures the ingress subscription exists and returns a
// consumer for it. Malformed messages are dead-lettered after a few attempts.
func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := pubsubName(cfg.ProjectID, "subscriptions", cfg.Ingress.SubscriptionID)
	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              pubsubName(cfg.ProjectID, "topics", cfg.Ingress.TopicID),
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 5},
			MaximumBackoff: &durationpb.Duration{Seconds: 60},
		},
	}
	if cfg.Ingress.DLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     pubsubName(cfg.ProjectID, "topics", cfg.Ingress.DLQTopicID),
			MaxDeliveryAttempts: 5,
		}
	}

	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) != codes.AlreadyExists {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub %s: %w", sub, err)
		}
		logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
	}

	return messagepipeline.NewGooglePubsubConsumer(cfg.PubsubConsumerConfig, psClient, logger)
}

func pubsubName(project, kind, id string) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, kind, id)
}
