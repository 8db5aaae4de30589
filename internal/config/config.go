// Package config loads the Kestrel configuration from an optional .env file,
// an optional YAML file and KESTREL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_SERVER_PORT.
const EnvPrefix = "KESTREL"

// Load builds the configuration. The tier (KESTREL_TIER) selects the base
// defaults, KESTREL_CONFIG names an optional YAML file, and environment
// variables override both.
func Load() (*domain.Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing file is
// ignored; variables already set in the environment win over the file.
func LoadWithEnvFile(envFile string) (*domain.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(os.Getenv(EnvPrefix+"_TIER"))) == domain.TierPro {
		base = domain.ProConfig()
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, base)

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *domain.Config) {
	defaults := map[string]any{
		"server.host":         cfg.Server.Host,
		"server.port":         cfg.Server.Port,
		"server.readTimeout":  cfg.Server.ReadTimeout,
		"server.writeTimeout": cfg.Server.WriteTimeout,

		"tier": string(cfg.Tier),

		"scoring.defaultMissingPolicy": string(cfg.Scoring.DefaultMissingPolicy),

		"repository.driver":           cfg.Repository.Driver,
		"repository.sqlitePath":       cfg.Repository.SQLitePath,
		"repository.postgresHost":     cfg.Repository.PostgresHost,
		"repository.postgresPort":     cfg.Repository.PostgresPort,
		"repository.postgresUser":     cfg.Repository.PostgresUser,
		"repository.postgresPassword": cfg.Repository.PostgresPassword,
		"repository.postgresDb":       cfg.Repository.PostgresDB,
		"repository.postgresSslMode":  cfg.Repository.PostgresSSLMode,
		"repository.maxOpenConns":     cfg.Repository.MaxOpenConns,
		"repository.maxIdleConns":     cfg.Repository.MaxIdleConns,
		"repository.connMaxLifetime":  cfg.Repository.ConnMaxLifetime,

		"cache.type":           cfg.Cache.Type,
		"cache.localMaxSize":   cfg.Cache.LocalMaxSize,
		"cache.localTtl":       cfg.Cache.LocalTTL,
		"cache.modelTtl":       cfg.Cache.ModelTTL,
		"cache.redisAddr":      cfg.Cache.RedisAddr,
		"cache.redisPassword":  cfg.Cache.RedisPassword,
		"cache.redisDb":        cfg.Cache.RedisDB,
		"cache.enableTwoPhase": cfg.Cache.EnableTwoPhase,

		"eventBus.type":              cfg.EventBus.Type,
		"eventBus.channelBufferSize": cfg.EventBus.ChannelBufferSize,
		"eventBus.natsUrl":           cfg.EventBus.NATSUrl,
		"eventBus.natsToken":         cfg.EventBus.NATSToken,
		"eventBus.natsMaxReconnects": cfg.EventBus.NATSMaxReconnects,
		"eventBus.natsReconnectWait": cfg.EventBus.NATSReconnectWait,

		"worker.enabled":     cfg.Worker.Enabled,
		"worker.workerCount": cfg.Worker.WorkerCount,
		"worker.tenantIds":   cfg.Worker.TenantIDs,

		"logging.level":  cfg.Logging.Level,
		"logging.format": cfg.Logging.Format,

		"tracing.enabled":      cfg.Tracing.Enabled,
		"tracing.serviceName":  cfg.Tracing.ServiceName,
		"tracing.exporterType": cfg.Tracing.ExporterType,
		"tracing.endpoint":     cfg.Tracing.Endpoint,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate checks a loaded configuration for values the components cannot
// start with.
func Validate(cfg *domain.Config) error {
	if !cfg.Tier.Valid() {
		return fmt.Errorf("unknown tier %q", cfg.Tier)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver %q", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redisAddr is required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type %q", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "channel":
	case "nats":
		if cfg.EventBus.NATSUrl == "" {
			return fmt.Errorf("eventBus.natsUrl is required for nats event bus")
		}
	default:
		return fmt.Errorf("unsupported event bus type %q", cfg.EventBus.Type)
	}

	policy := cfg.Scoring.DefaultMissingPolicy
	if !policy.Valid() {
		return fmt.Errorf("unknown missing policy %q", policy)
	}
	cfg.Scoring.DefaultMissingPolicy = policy.OrDefault()

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}

	return nil
}
