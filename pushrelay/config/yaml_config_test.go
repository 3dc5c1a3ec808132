package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-pushrelay-service/pushrelay/config"
)

const sampleYaml = `
project_id: yaml-project
listen_addr: ":9000"
log_file: ./logs/access.log
provider: apns
num_pipeline_workers: 5
store:
  driver: sqlite
  sqlite_path: ./data/relay.db
  busy_timeout_ms: 2500
  max_open_conns: 8
redis:
  enabled: true
  addr: localhost:6379
  ttl_seconds: 60
apns:
  key_id: KEY123
  team_id: TEAM456
  bundle_id: com.example.companion
  p8_key_file: ./secrets/AuthKey.p8
  production: true
retry:
  enabled: true
  max_attempts: 4
  initial_interval_ms: 100
  max_interval_ms: 2000
  trip_after: 5
  cooldown_ms: 10000
  rate_per_second: 50
ingress:
  enabled: true
  subscription_id: push-requests-sub
  topic_id: push-requests
  dlq_topic_id: push-requests-dlq
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
`

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYaml), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "./logs/access.log", cfg.LogFile)
		assert.Equal(t, config.ProviderAPNS, cfg.Provider)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		// 2. Durations
		assert.Equal(t, 2500*time.Millisecond, cfg.Store.BusyTimeout)
		assert.Equal(t, 8, cfg.Store.MaxOpenConns)
		assert.Equal(t, time.Minute, cfg.Redis.TTL)
		assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
		assert.Equal(t, 2*time.Second, cfg.Retry.MaxInterval)
		assert.Equal(t, 10*time.Second, cfg.Retry.Cooldown)
		assert.Equal(t, 50.0, cfg.Retry.RatePerSecond)

		// 3. Providers
		assert.Equal(t, "com.example.companion", cfg.APNS.BundleID)
		assert.True(t, cfg.APNS.Production)

		// 4. Ingress
		assert.True(t, cfg.Ingress.Enabled)
		assert.Equal(t, "push-requests-dlq", cfg.Ingress.DLQTopicID)
		assert.NotNil(t, cfg.PubsubConsumerConfig)

		// 5. CORS
		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{ProjectID: "minimal-project"}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Empty(t, cfg.Vapid.PublicKey)
		assert.Nil(t, cfg.PubsubConsumerConfig)
	})
}
