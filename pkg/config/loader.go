package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("BRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without the BRIDGE_ prefix for container deploys
	viper.BindEnv("http.port", "HTTP_PORT", "BRIDGE_HTTP_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "BRIDGE_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "BRIDGE_REDIS_URL")
	viper.BindEnv("nats.url", "NATS_URL", "BRIDGE_NATS_URL")
	viper.BindEnv("jwt.secret", "JWT_SECRET", "BRIDGE_JWT_SECRET")
	viper.BindEnv("ocpi.base_url", "OCPI_BASE_URL", "BRIDGE_OCPI_BASE_URL")
	viper.BindEnv("ocpi.token", "OCPI_TOKEN", "BRIDGE_OCPI_TOKEN")
	viper.BindEnv("app.environment", "BRIDGE_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults carry the load.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.OCPI.BaseURL == "" {
		return nil, fmt.Errorf("ocpi.base_url is required")
	}
	if cfg.Provider.BppID == "" {
		return nil, fmt.Errorf("provider.bpp_id is required")
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "beckn-ocpi-bridge")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("ocpi.timeout", 10*time.Second)
	viper.SetDefault("ocpi.cache_ttl", 30*time.Second)
	viper.SetDefault("billing.tolerance", 0.01)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", 200*time.Millisecond)
	viper.SetDefault("retry.max_delay", 2*time.Second)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("jwt.token_duration", 24*time.Hour)
	viper.SetDefault("prometheus.path", "/metrics")
	viper.SetDefault("prometheus.enabled", true)
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("logging.level", "info")
}
