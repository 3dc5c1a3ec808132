// Package config holds the relay's runtime configuration: an embedded YAML
// base, environment overrides on top, then validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type Provider string

const (
	ProviderFCM  Provider = "fcm"
	ProviderAPNS Provider = "apns"
	ProviderWeb  Provider = "web"
)

type StoreDriver string

const (
	DriverSQLite    StoreDriver = "sqlite"
	DriverFirestore StoreDriver = "firestore"
)

type StoreConfig struct {
	Driver       StoreDriver
	SQLitePath   string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type APNSConfig struct {
	KeyID      string
	TeamID     string
	BundleID   string
	P8KeyFile  string
	Production bool
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type RetryConfig struct {
	Enabled         bool
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	TripAfter       int
	Cooldown        time.Duration
	RatePerSecond   float64
}

type IngressConfig struct {
	Enabled        bool
	SubscriptionID string
	TopicID        string
	DLQTopicID     string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID               string
	ListenAddr              string
	LogFile                 string
	Provider                Provider
	FirebaseCredentialsFile string
	NumPipelineWorkers      int

	Store   StoreConfig
	Redis   RedisConfig
	APNS    APNSConfig
	Vapid   VapidConfig
	Retry   RetryConfig
	Ingress IngressConfig

	CorsConfig           middleware.CorsConfig
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables, fills defaults
// and validates the result.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, apply func(string)) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			apply(val)
		}
	}
	overrideInt := func(key string, apply func(int)) {
		override(key, func(val string) {
			if n, err := strconv.Atoi(val); err == nil {
				apply(n)
			} else {
				logger.Warn("Ignoring non-numeric override", "key", key)
			}
		})
	}
	overrideBool := func(key string, apply func(bool)) {
		override(key, func(val string) {
			if b, err := strconv.ParseBool(val); err == nil {
				apply(b)
			} else {
				logger.Warn("Ignoring non-boolean override", "key", key)
			}
		})
	}

	override("PROJECT_ID", func(v string) { cfg.ProjectID = v })
	override("PORT", func(v string) { cfg.ListenAddr = ":" + v })
	override("LOG_FILE", func(v string) { cfg.LogFile = v })
	override("PUSH_PROVIDER", func(v string) { cfg.Provider = Provider(strings.ToLower(v)) })
	override("FIREBASE_CREDENTIALS_FILE", func(v string) { cfg.FirebaseCredentialsFile = v })
	overrideInt("NUM_PIPELINE_WORKERS", func(n int) {
		if n > 0 {
			cfg.NumPipelineWorkers = n
		}
	})

	// Store
	override("STORE_DRIVER", func(v string) { cfg.Store.Driver = StoreDriver(strings.ToLower(v)) })
	override("SQLITE_PATH", func(v string) { cfg.Store.SQLitePath = v })

	// Redis
	override("REDIS_ADDR", func(v string) {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	})
	override("REDIS_PASSWORD", func(v string) { cfg.Redis.Password = v })
	overrideInt("REDIS_DB", func(n int) { cfg.Redis.DB = n })
	overrideBool("REDIS_ENABLED", func(b bool) { cfg.Redis.Enabled = b })

	// APNs
	override("APNS_KEY_ID", func(v string) { cfg.APNS.KeyID = v })
	override("APNS_TEAM_ID", func(v string) { cfg.APNS.TeamID = v })
	override("APNS_BUNDLE_ID", func(v string) { cfg.APNS.BundleID = v })
	override("APNS_P8_KEY_FILE", func(v string) { cfg.APNS.P8KeyFile = v })
	overrideBool("APNS_PRODUCTION", func(b bool) { cfg.APNS.Production = b })

	// VAPID
	override("VAPID_PUBLIC_KEY", func(v string) { cfg.Vapid.PublicKey = v })
	override("VAPID_PRIVATE_KEY", func(v string) { cfg.Vapid.PrivateKey = v })
	override("VAPID_SUB_EMAIL", func(v string) { cfg.Vapid.SubscriberEmail = v })

	overrideBool("RETRY_ENABLED", func(b bool) { cfg.Retry.Enabled = b })

	// Ingress
	override("INGRESS_SUBSCRIPTION_ID", func(v string) {
		cfg.Ingress.SubscriptionID = v
		cfg.Ingress.Enabled = true
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(v)
	})

	override("CORS_ALLOWED_ORIGINS", func(v string) {
		var cleanOrigins []string
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	})

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderFCM
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverSQLite
	}
	if cfg.Store.BusyTimeout <= 0 {
		cfg.Store.BusyTimeout = 5 * time.Second
	}
	if cfg.Store.MaxOpenConns <= 0 {
		cfg.Store.MaxOpenConns = 4
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.PubsubConsumerConfig == nil && cfg.Ingress.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Ingress.SubscriptionID)
	}
}

func validate(cfg *Config) error {
	switch cfg.Provider {
	case ProviderFCM, ProviderAPNS, ProviderWeb:
	default:
		return fmt.Errorf("unknown provider %q (want fcm, apns or web)", cfg.Provider)
	}

	switch cfg.Store.Driver {
	case DriverSQLite:
		if cfg.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver (set via YAML or SQLITE_PATH env var)")
		}
	case DriverFirestore:
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite or firestore)", cfg.Store.Driver)
	}

	needsProject := cfg.Provider == ProviderFCM || cfg.Store.Driver == DriverFirestore || cfg.Ingress.Enabled
	if needsProject && cfg.ProjectID == "" {
		return fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}

	if cfg.Ingress.Enabled && cfg.Ingress.SubscriptionID == "" {
		return fmt.Errorf("ingress.subscription_id is required when ingress is enabled")
	}
	return nil
}
