package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-dispatcher/pushdispatcher/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		raw := []byte(`
project_id: yaml-project
listen_addr: ":9000"
store:
  backend: postgres
  table: public.device_tokens
  retry_max: 2
redis:
  enabled: true
  addr: localhost:6379
  ttl: 5m
timeouts:
  token: 8s
  store: 2s
  delivery: 7s
max_concurrent_deliveries: 8
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
topic_id: yaml-topic
subscription_id: yaml-subscription
subscription_dlq_topic_id: yaml-dlq
num_pipeline_workers: 5
`)
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal(raw, &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, config.BackendPostgres, cfg.Store.Backend)
		assert.Equal(t, "public.device_tokens", cfg.Store.Table)
		assert.Equal(t, 2, cfg.Store.RetryMax)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
		assert.Equal(t, 8*time.Second, cfg.Timeouts.Token)
		assert.Equal(t, 2*time.Second, cfg.Timeouts.Store)
		assert.Equal(t, 7*time.Second, cfg.Timeouts.Delivery)
		assert.Equal(t, 8, cfg.MaxConcurrentDeliveries)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)
		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{ProjectID: "minimal-project"}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Zero(t, cfg.Timeouts.Store)
		assert.Empty(t, cfg.ListenAddr)
		assert.Nil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Failure - invalid duration", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{Timeouts: config.YamlTimeoutConfig{Delivery: "ten"}}
		_, err := config.NewConfigFromYaml(yamlCfg, logger)
		assert.ErrorContains(t, err, "timeouts.delivery")
	})
}
