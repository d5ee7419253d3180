package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the board service.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	DatabaseURL    string
	RedisURL       string
	StreamTimeout  time.Duration
	RecentLimit    int
	RecentCacheTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LIVEBOARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Liveboard API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "messages.db")
	v.SetDefault("stream.timeout", "15s")
	v.SetDefault("recent.limit", 50)
	v.SetDefault("recent.cache_ttl", "30s")

	timeout, err := time.ParseDuration(v.GetString("stream.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid stream timeout: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cacheTTL, err := time.ParseDuration(v.GetString("recent.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid recent cache ttl: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		StreamTimeout:  timeout,
		RecentLimit:    v.GetInt("recent.limit"),
		RecentCacheTTL: cacheTTL,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 50
	}

	return cfg, nil
}
