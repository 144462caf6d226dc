package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset loading.
	CatalogPath      string
	FetchTimeout     time.Duration
	FetchRetries     int
	FetchConcurrency int
	CacheSize        int
	Preload          bool

	// Snapshot publishing.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("FETCH_TIMEOUT", "30s"))
	if err != nil || fetchTimeout <= 0 {
		return nil, errors.New("invalid FETCH_TIMEOUT")
	}

	retries, err := parseInt("FETCH_RETRIES", 2, 0, 5)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("FETCH_CONCURRENCY", 4, 1, 32)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("CACHE_SIZE", 16, 1, 1024)
	if err != nil {
		return nil, err
	}
	preload, err := parseBool("PRELOAD", false)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if s := os.Getenv("KAFKA_BROKERS"); s != "" {
		brokers = sharedcfg.ParseBrokers(s)
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", len(brokers) > 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		CatalogPath:      os.Getenv("CATALOG_PATH"),
		FetchTimeout:     fetchTimeout,
		FetchRetries:     retries,
		FetchConcurrency: concurrency,
		CacheSize:        cacheSize,
		Preload:          preload,
		KafkaBrokers:     brokers,
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "normalized-air-quality"),
		KafkaEnabled:     kafkaEnabled,
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}

	return cfg, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
