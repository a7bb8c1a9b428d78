package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string
	Env  string

	LogLevel  string
	LogFormat string
	LogFile   string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret   string
	JWTTTL      time.Duration
	AdminAPIKey string

	// Kicklet is the external points provider used for users with a linked Kick account.
	KickletURL        string
	KickletToken      string
	KickChannelID     string
	KickletMaxRetries int
	KickletRetryBase  time.Duration

	HistoryBackend string // redis or postgres
	DatabaseURL    string

	HouseEdge       float64
	MaxBet          int64
	StartingPoints  int64
	MinesSessionTTL time.Duration
	SessionTTL      time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   getEnv("LOG_FILE", ""),

		RedisURL:  getEnv("REDIS_URL", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASSWORD", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTTTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		KickletURL:        getEnv("KICKLET_API_URL", "https://kicklet.app/api"),
		KickletToken:      getEnv("KICKLET_API_TOKEN", ""),
		KickChannelID:     getEnv("KICK_CHANNEL_ID", ""),
		KickletMaxRetries: getEnvInt("KICKLET_MAX_RETRIES", 3),
		KickletRetryBase:  getEnvDuration("KICKLET_RETRY_BASE", time.Second),

		HistoryBackend: getEnv("HISTORY_BACKEND", "redis"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		HouseEdge:       getEnvFloat("HOUSE_EDGE", 0.01),
		MaxBet:          int64(getEnvInt("MAX_BET", 0)),
		StartingPoints:  int64(getEnvInt("STARTING_POINTS", 0)),
		MinesSessionTTL: getEnvDuration("MINES_SESSION_TTL", 24*time.Hour),
		SessionTTL:      getEnvDuration("SESSION_TTL", 30*24*time.Hour),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KickletEnabled reports whether delegated balances can be served.
func (c *Config) KickletEnabled() bool {
	return c.KickletToken != "" && c.KickChannelID != ""
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.Env == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-secret"
	}

	switch c.HistoryBackend {
	case "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid HISTORY_BACKEND: %s", c.HistoryBackend)
	}

	if c.HouseEdge < 0 || c.HouseEdge >= 1 {
		return fmt.Errorf("HOUSE_EDGE must be in [0,1), got %v", c.HouseEdge)
	}
	if c.MaxBet < 0 {
		return fmt.Errorf("MAX_BET must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
