package config_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-pushrelay-service/pushrelay/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:          "base-project",
			ListenAddr:         ":8080",
			Provider:           config.ProviderFCM,
			NumPipelineWorkers: 2,
			Store: config.StoreConfig{
				Driver:     config.DriverSQLite,
				SQLitePath: "/tmp/base.db",
			},
			Vapid: config.VapidConfig{
				PublicKey:  "base-pub",
				PrivateKey: "base-priv",
			},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("LOG_FILE", "/var/log/relay.log")
		t.Setenv("PUSH_PROVIDER", "WEB")
		t.Setenv("SQLITE_PATH", "/data/env.db")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("VAPID_PUBLIC_KEY", "env-pub")
		t.Setenv("VAPID_PRIVATE_KEY", "env-priv")
		t.Setenv("VAPID_SUB_EMAIL", "env@test.com")
		t.Setenv("RETRY_ENABLED", "true")
		t.Setenv("INGRESS_SUBSCRIPTION_ID", "env-sub")
		t.Setenv("NUM_PIPELINE_WORKERS", "8")
		t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.com, ,http://b.com ")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "/var/log/relay.log", finalCfg.LogFile)
		assert.Equal(t, config.ProviderWeb, finalCfg.Provider)
		assert.Equal(t, "/data/env.db", finalCfg.Store.SQLitePath)

		assert.True(t, finalCfg.Redis.Enabled, "REDIS_ADDR implies enabled")
		assert.Equal(t, "redis:6379", finalCfg.Redis.Addr)
		assert.Equal(t, 3, finalCfg.Redis.DB)

		assert.Equal(t, "env-pub", finalCfg.Vapid.PublicKey)
		assert.Equal(t, "env-priv", finalCfg.Vapid.PrivateKey)
		assert.Equal(t, "env@test.com", finalCfg.Vapid.SubscriberEmail)

		assert.True(t, finalCfg.Retry.Enabled)
		assert.True(t, finalCfg.Ingress.Enabled)
		assert.Equal(t, "env-sub", finalCfg.Ingress.SubscriptionID)
		require.NotNil(t, finalCfg.PubsubConsumerConfig)
		assert.Equal(t, 8, finalCfg.NumPipelineWorkers)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, finalCfg.CorsConfig.AllowedOrigins)
	})

	t.Run("Success - Defaults filled", func(t *testing.T) {
		cfg := &config.Config{
			ProjectID: "p",
			Store:     config.StoreConfig{SQLitePath: "/tmp/x.db"},
		}

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, ":8080", finalCfg.ListenAddr)
		assert.Equal(t, config.ProviderFCM, finalCfg.Provider)
		assert.Equal(t, config.DriverSQLite, finalCfg.Store.Driver)
		assert.Equal(t, 4, finalCfg.Store.MaxOpenConns)
		assert.Equal(t, 5*time.Second, finalCfg.Store.BusyTimeout)
		assert.Equal(t, 24*time.Hour, finalCfg.Redis.TTL)
		assert.Equal(t, 1, finalCfg.NumPipelineWorkers)
		assert.False(t, finalCfg.Retry.Enabled)
		assert.Nil(t, finalCfg.PubsubConsumerConfig)
	})

	t.Run("Non-numeric override is ignored", func(t *testing.T) {
		t.Setenv("REDIS_DB", "zero")
		cfg := baseConfig()
		cfg.Redis.DB = 1

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, 1, finalCfg.Redis.DB)
	})

	t.Run("Validation", func(t *testing.T) {
		testCases := []struct {
			name string
			cfg  config.Config
		}{
			{"fcm without project", config.Config{
				Provider: config.ProviderFCM,
				Store:    config.StoreConfig{SQLitePath: "/tmp/x.db"},
			}},
			{"firestore without project", config.Config{
				Provider: config.ProviderWeb,
				Store:    config.StoreConfig{Driver: config.DriverFirestore},
			}},
			{"sqlite without path", config.Config{
				ProjectID: "p",
				Provider:  config.ProviderFCM,
			}},
			{"unknown provider", config.Config{
				ProjectID: "p",
				Provider:  "pigeon",
				Store:     config.StoreConfig{SQLitePath: "/tmp/x.db"},
			}},
			{"unknown driver", config.Config{
				ProjectID: "p",
				Store:     config.StoreConfig{Driver: "postgres"},
			}},
			{"ingress without project", config.Config{
				Provider: config.ProviderWeb,
				Store:    config.StoreConfig{SQLitePath: "/tmp/x.db"},
				Ingress:  config.IngressConfig{Enabled: true, SubscriptionID: "s"},
			}},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv("PROJECT_ID", "")
				cfg := tc.cfg
				_, err := config.UpdateConfigWithEnvOverrides(&cfg, logger)
				assert.Error(t, err)
			})
		}
	})

	t.Run("Web provider on sqlite needs no project", func(t *testing.T) {
		t.Setenv("PROJECT_ID", "")
		cfg := &config.Config{
			Provider: config.ProviderWeb,
			Store:    config.StoreConfig{SQLitePath: "/tmp/x.db"},
		}

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.NoError(t, err)
	})
}
