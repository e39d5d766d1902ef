package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Refresh RefreshConfig
	Map     MapConfig
	Worker  WorkerConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS float64
	AllowOrigins []string
}

type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

type RefreshConfig struct {
	MapInterval   time.Duration
	StatsInterval time.Duration
}

type MapConfig struct {
	NearbyRadiusKm float64
	FitPaddingPx   int
}

type WorkerConfig struct {
	BufferSize int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 5),
			AllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Backend: BackendConfig{
			URL:     getEnv("BACKEND_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("BACKEND_TIMEOUT", 15*time.Second),
		},
		Refresh: RefreshConfig{
			MapInterval:   getEnvDuration("MAP_POLL_INTERVAL", 2*time.Minute),
			StatsInterval: getEnvDuration("STATS_POLL_INTERVAL", 30*time.Second),
		},
		Map: MapConfig{
			NearbyRadiusKm: getEnvFloat("NEARBY_RADIUS_KM", 100),
			FitPaddingPx:   getEnvInt("FIT_PADDING_PX", 20),
		},
		Worker: WorkerConfig{
			BufferSize: getEnvInt("EVENT_BUFFER_SIZE", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must not be negative: %v", c.Server.RateLimitRPS)
	}

	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}

	if c.Refresh.MapInterval < time.Second {
		return fmt.Errorf("map poll interval must be at least 1 second")
	}
	if c.Refresh.StatsInterval < time.Second {
		return fmt.Errorf("stats poll interval must be at least 1 second")
	}

	if c.Map.NearbyRadiusKm <= 0 {
		return fmt.Errorf("nearby radius must be positive: %v", c.Map.NearbyRadiusKm)
	}
	if c.Map.FitPaddingPx < 0 {
		return fmt.Errorf("fit padding must not be negative: %d", c.Map.FitPaddingPx)
	}
	if c.Worker.BufferSize < 1 {
		return fmt.Errorf("event buffer size must be at least 1: %d", c.Worker.BufferSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
