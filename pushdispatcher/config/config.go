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

// Store backends.
const (
	BackendRest      = "rest"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type StoreConfig struct {
	Backend       string
	RestURL       string
	RestKey       string
	Table         string
	DatabaseURL   string
	FirestoreRoot string
	RetryMax      int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type TimeoutConfig struct {
	Token    time.Duration
	Store    time.Duration
	Delivery time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID  string
	ListenAddr string

	// ServiceAccountJSON is the raw messaging service-account blob. It is
	// parsed on every dispatch, never at startup.
	ServiceAccountJSON      string
	Store                   StoreConfig
	Redis                   RedisConfig
	Timeouts                TimeoutConfig
	MaxConcurrentDeliveries int

	CorsConfig         middleware.CorsConfig
	IdentityServiceURL string

	// Pub/Sub ingestion is enabled when SubscriptionID is set.
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether the Pub/Sub consumer should be started.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("FIREBASE_SERVICE_ACCOUNT"); val != "" {
		logger.Debug("Overriding config value", "key", "FIREBASE_SERVICE_ACCOUNT", "source", "env")
		cfg.ServiceAccountJSON = val
	}

	// Store Overrides
	if val := os.Getenv("STORE_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "STORE_BACKEND", "source", "env")
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(val))
	}
	if val := os.Getenv("SUPABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "SUPABASE_URL", "source", "env")
		cfg.Store.RestURL = val
	}
	if val := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "SUPABASE_SERVICE_ROLE_KEY", "source", "env")
		cfg.Store.RestKey = val
	}
	if val := os.Getenv("DEVICE_TOKENS_TABLE"); val != "" {
		logger.Debug("Overriding config value", "key", "DEVICE_TOKENS_TABLE", "source", "env")
		cfg.Store.Table = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.Store.DatabaseURL = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}
	if err := overrideDuration("REDIS_TTL", &cfg.Redis.TTL, logger); err != nil {
		return nil, err
	}

	// Timeouts
	if err := overrideDuration("TOKEN_TIMEOUT", &cfg.Timeouts.Token, logger); err != nil {
		return nil, err
	}
	if err := overrideDuration("STORE_TIMEOUT", &cfg.Timeouts.Store, logger); err != nil {
		return nil, err
	}
	if err := overrideDuration("DELIVERY_TIMEOUT", &cfg.Timeouts.Delivery, logger); err != nil {
		return nil, err
	}
	if val := os.Getenv("MAX_CONCURRENT_DELIVERIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			logger.Debug("Overriding config value", "key", "MAX_CONCURRENT_DELIVERIES", "source", "env")
			cfg.MaxConcurrentDeliveries = n
		}
	}

	// Pub/Sub Overrides
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// CORS / Auth Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityServiceURL = val
	}

	// 2. Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendRest
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = "device_tokens"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 10 * time.Minute
	}
	if cfg.Timeouts.Token <= 0 {
		cfg.Timeouts.Token = 10 * time.Second
	}
	if cfg.Timeouts.Store <= 0 {
		cfg.Timeouts.Store = 5 * time.Second
	}
	if cfg.Timeouts.Delivery <= 0 {
		cfg.Timeouts.Delivery = 10 * time.Second
	}
	if cfg.MaxConcurrentDeliveries <= 0 {
		cfg.MaxConcurrentDeliveries = 16
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	// 3. Final Validation
	switch cfg.Store.Backend {
	case BackendRest:
		if cfg.Store.RestURL == "" || cfg.Store.RestKey == "" {
			return nil, fmt.Errorf("rest store requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case BackendPostgres:
		if cfg.Store.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("firestore store requires project_id (set via YAML or PROJECT_ID env var)")
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.PipelineEnabled() {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("project_id is required when subscription_id is set")
		}
		if cfg.PubsubConsumerConfig == nil {
			cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
		}
	}

	// A missing credential is reported per request, so the process still starts.
	if cfg.ServiceAccountJSON == "" {
		logger.Warn("FIREBASE_SERVICE_ACCOUNT is not set. Every dispatch will fail until it is configured.")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func overrideDuration(key string, target *time.Duration, logger *slog.Logger) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	logger.Debug("Overriding config value", "key", key, "source", "env")
	*target = d
	return nil
}
