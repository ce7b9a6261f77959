package config

import (
	"fmt"
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
	Backend       string `yaml:"backend"`
	RestURL       string `yaml:"rest_url"`
	Table         string `yaml:"table"`
	FirestoreRoot string `yaml:"firestore_root"`
	RetryMax      int    `yaml:"retry_max"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlTimeoutConfig struct {
	Token    string `yaml:"token"`
	Store    string `yaml:"store"`
	Delivery string `yaml:"delivery"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Secrets (service account, store keys, DSNs) only come from the environment.
type YamlConfig struct {
	ProjectID               string            `yaml:"project_id"`
	ListenAddr              string            `yaml:"listen_addr"`
	Store                   YamlStoreConfig   `yaml:"store"`
	RedisConfig             YamlRedisConfig   `yaml:"redis"`
	Timeouts                YamlTimeoutConfig `yaml:"timeouts"`
	MaxConcurrentDeliveries int               `yaml:"max_concurrent_deliveries"`
	CorsConfig              YamlCorsConfig    `yaml:"cors"`
	IdentityServiceURL      string            `yaml:"identity_service_url"`
	TopicID                 string            `yaml:"topic_id"`
	SubscriptionID          string            `yaml:"subscription_id"`
	SubscriptionDLQTopicID  string            `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers      int               `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	redisTTL, err := parseDuration("redis.ttl", baseCfg.RedisConfig.TTL)
	if err != nil {
		return nil, err
	}
	tokenTimeout, err := parseDuration("timeouts.token", baseCfg.Timeouts.Token)
	if err != nil {
		return nil, err
	}
	storeTimeout, err := parseDuration("timeouts.store", baseCfg.Timeouts.Store)
	if err != nil {
		return nil, err
	}
	deliveryTimeout, err := parseDuration("timeouts.delivery", baseCfg.Timeouts.Delivery)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:  baseCfg.ProjectID,
		ListenAddr: baseCfg.ListenAddr,
		Store: StoreConfig{
			Backend:       baseCfg.Store.Backend,
			RestURL:       baseCfg.Store.RestURL,
			Table:         baseCfg.Store.Table,
			FirestoreRoot: baseCfg.Store.FirestoreRoot,
			RetryMax:      baseCfg.Store.RetryMax,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      redisTTL,
		},
		Timeouts: TimeoutConfig{
			Token:    tokenTimeout,
			Store:    storeTimeout,
			Delivery: deliveryTimeout,
		},
		MaxConcurrentDeliveries: baseCfg.MaxConcurrentDeliveries,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		IdentityServiceURL:     baseCfg.IdentityServiceURL,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.Store.Backend,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return d, nil
}
