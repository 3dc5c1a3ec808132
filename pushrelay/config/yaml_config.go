package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlStoreConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
}

type YamlRedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Enabled    bool   `yaml:"enabled"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type YamlAPNSConfig struct {
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	P8KeyFile  string `yaml:"p8_key_file"`
	Production bool   `yaml:"production"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlRetryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialIntervalMs int     `yaml:"initial_interval_ms"`
	MaxIntervalMs     int     `yaml:"max_interval_ms"`
	TripAfter         int     `yaml:"trip_after"`
	CooldownMs        int     `yaml:"cooldown_ms"`
	RatePerSecond     float64 `yaml:"rate_per_second"`
}

type YamlIngressConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SubscriptionID string `yaml:"subscription_id"`
	TopicID        string `yaml:"topic_id"`
	DLQTopicID     string `yaml:"dlq_topic_id"`
}

// YamlConfig mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID               string            `yaml:"project_id"`
	ListenAddr              string            `yaml:"listen_addr"`
	LogFile                 string            `yaml:"log_file"`
	Provider                string            `yaml:"provider"`
	FirebaseCredentialsFile string            `yaml:"firebase_credentials_file"`
	NumPipelineWorkers      int               `yaml:"num_pipeline_workers"`
	Store                   YamlStoreConfig   `yaml:"store"`
	RedisConfig             YamlRedisConfig   `yaml:"redis"`
	APNSConfig              YamlAPNSConfig    `yaml:"apns"`
	VapidConfig             YamlVapidConfig   `yaml:"vapid"`
	RetryConfig             YamlRetryConfig   `yaml:"retry"`
	Ingress                 YamlIngressConfig `yaml:"ingress"`
	CorsConfig              YamlCorsConfig    `yaml:"cors"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:               baseCfg.ProjectID,
		ListenAddr:              baseCfg.ListenAddr,
		LogFile:                 baseCfg.LogFile,
		Provider:                Provider(baseCfg.Provider),
		FirebaseCredentialsFile: baseCfg.FirebaseCredentialsFile,
		NumPipelineWorkers:      baseCfg.NumPipelineWorkers,
		Store: StoreConfig{
			Driver:       StoreDriver(baseCfg.Store.Driver),
			SQLitePath:   baseCfg.Store.SQLitePath,
			BusyTimeout:  millis(baseCfg.Store.BusyTimeoutMs),
			MaxOpenConns: baseCfg.Store.MaxOpenConns,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      time.Duration(baseCfg.RedisConfig.TTLSeconds) * time.Second,
		},
		APNS: APNSConfig{
			KeyID:      baseCfg.APNSConfig.KeyID,
			TeamID:     baseCfg.APNSConfig.TeamID,
			BundleID:   baseCfg.APNSConfig.BundleID,
			P8KeyFile:  baseCfg.APNSConfig.P8KeyFile,
			Production: baseCfg.APNSConfig.Production,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		Retry: RetryConfig{
			Enabled:         baseCfg.RetryConfig.Enabled,
			MaxAttempts:     baseCfg.RetryConfig.MaxAttempts,
			InitialInterval: millis(baseCfg.RetryConfig.InitialIntervalMs),
			MaxInterval:     millis(baseCfg.RetryConfig.MaxIntervalMs),
			TripAfter:       baseCfg.RetryConfig.TripAfter,
			Cooldown:        millis(baseCfg.RetryConfig.CooldownMs),
			RatePerSecond:   baseCfg.RetryConfig.RatePerSecond,
		},
		Ingress: IngressConfig{
			Enabled:        baseCfg.Ingress.Enabled,
			SubscriptionID: baseCfg.Ingress.SubscriptionID,
			TopicID:        baseCfg.Ingress.TopicID,
			DLQTopicID:     baseCfg.Ingress.DLQTopicID,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
	}

	if cfg.Ingress.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.Ingress.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"provider", cfg.Provider,
		"store_driver", cfg.Store.Driver,
	)

	return cfg, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
