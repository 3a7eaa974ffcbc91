// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the service needs at boot.
type Config struct {
	HTTPPort string

	// OpenAI Responses API settings.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	Instructions  string
	WebSearch     bool

	// Engine settings.
	QueueCapacity     int
	MaxToolRounds     int
	SynthesizeQueries bool
	TurnTimeout       time.Duration

	// Conversation log.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoadFromEnv loads configuration with defaults and validates it.
func LoadFromEnv() (Config, error) {
	queueCap, err := intEnv("LOOM_QUEUE_CAPACITY", 256)
	if err != nil {
		return Config{}, err
	}
	maxRounds, err := intEnv("LOOM_MAX_TOOL_ROUNDS", 8)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	turnTimeout, err := durationEnv("LOOM_TURN_TIMEOUT", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	webSearch, err := boolEnv("LOOM_WEB_SEARCH", true)
	if err != nil {
		return Config{}, err
	}
	synthesize, err := boolEnv("LOOM_SYNTHESIZE_SEARCH_QUERIES", true)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPPort:          getEnvOrDefault("HTTP_PORT", "8080"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		Model:             getEnvOrDefault("LOOM_MODEL", "gpt-5"),
		Instructions:      os.Getenv("LOOM_INSTRUCTIONS"),
		WebSearch:         webSearch,
		QueueCapacity:     queueCap,
		MaxToolRounds:     maxRounds,
		SynthesizeQueries: synthesize,
		TurnTimeout:       turnTimeout,
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
	}

	if cfg.QueueCapacity <= 0 {
		return Config{}, fmt.Errorf("LOOM_QUEUE_CAPACITY must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.MaxToolRounds <= 0 {
		return Config{}, fmt.Errorf("LOOM_MAX_TOOL_ROUNDS must be positive, got %d", cfg.MaxToolRounds)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
