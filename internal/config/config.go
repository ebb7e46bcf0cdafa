package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server settings read from the environment
type Config struct {
	MongoURI          string
	MongoDatabase     string
	RedisURI          string
	Port              string
	LogMode           string
	StorePolicy       string
	ReplayTTL         time.Duration
	HydrationAttempts int
	QuestionnaireFile string
	ShutdownTimeout   time.Duration
	CORS              CORSConfig
}

// CORSConfig drives the router's CORS middleware
type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
	ExposedHeaders string
}

// Load reads the configuration, failing on malformed numeric or duration values
func Load() (*Config, error) {
	cfg := &Config{
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGO_DATABASE", "screenflow"),
		RedisURI:          getEnv("REDIS_URI", "localhost:6379"),
		Port:              getEnv("PORT", "8080"),
		LogMode:           getEnv("LOG_MODE", "production"),
		StorePolicy:       getEnv("STORE_POLICY", "fallback"),
		QuestionnaireFile: getEnv("QUESTIONNAIRE_FILE", ""),
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET, POST, PATCH, DELETE, OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type, If-Match, X-Request-ID"),
			ExposedHeaders: getEnv("CORS_EXPOSED_HEADERS", "ETag, Screen-ETag, X-Request-ID"),
		},
	}

	var err error
	if cfg.ReplayTTL, err = getEnvDuration("REPLAY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HydrationAttempts, err = getEnvInt("HYDRATION_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.HydrationAttempts < 1 {
		return nil, fmt.Errorf("HYDRATION_ATTEMPTS must be at least 1, got %d", cfg.HydrationAttempts)
	}
	return cfg, nil
}

// RedisAddr strips an optional redis:// scheme from RedisURI
func (c *Config) RedisAddr() string {
	return strings.TrimPrefix(c.RedisURI, "redis://")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, val)
	}
	return d, nil
}
