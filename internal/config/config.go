package config

import (
	"os"
	"strconv"
	"time"

	"vandalwatch/internal/models"
)

// Config holds all service configuration loaded from environment variables.
// Everything here is read once at startup; nothing is mutated afterwards.
type Config struct {
	// Environment
	Env string // "development", "production", etc.

	// Server
	ServerAddr string

	// Database
	DatabaseURL string

	// Redis metadata cache. Empty disables caching.
	RedisURL string

	// Notification feed
	NATSUrl     string
	FeedSubject string

	// Content platform API
	ContentAPIURL string

	// Classifier services
	ClassifierURL string
	SecondaryURL  string // independent second scorer; empty disables
	RetrainEvery  int    // classified edits between retrains; -1 disables

	// Admission queue
	AdmissionDelay time.Duration // replication-lag grace before an item matures
	PollInterval   time.Duration // driver sleep when the queue head is immature
	NewRIDAttempts int           // retry budget for metadata lookups

	// Worker pool
	WorkerCount        int
	MonitoredNamespace int

	// Short-circuit policy
	RegularEditThreshold int64 // authors at/above this edit count are never queued

	// Reservation queues
	DefaultChannel     string
	ExternalChannel    string
	MinQueueSize       int // low-water mark that triggers leasing
	CacheCapacity      int // bounded per-session wait cache
	LeaseBatchSize     int
	ReservationHistory int // last K reservation ids kept alive per session

	// Offending-edit detector
	BackSearchDepth int

	// Queue maintainer
	MaintainerInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env:           getEnv("ENV", "development"),
		ServerAddr:    getEnv("SERVER_ADDR", ":3000"),
		DatabaseURL:   getEnv("DATABASE_URL", "postgres://localhost:5432/vandalwatch?sslmode=disable"),
		RedisURL:      getEnv("REDIS_URL", ""),
		NATSUrl:       getEnv("NATS_URL", "nats://localhost:4222"),
		FeedSubject:   getEnv("FEED_SUBJECT", "platform.recentchange"),
		ContentAPIURL: getEnv("CONTENT_API_URL", "http://localhost:8080"),
		ClassifierURL: getEnv("CLASSIFIER_URL", "http://localhost:8090"),
		SecondaryURL:  getEnv("SECONDARY_SCORER_URL", ""),
		RetrainEvery:  getEnvInt("RETRAIN_EVERY", -1),

		AdmissionDelay: getEnvDuration("ADMISSION_DELAY", 10*time.Second),
		PollInterval:   getEnvDuration("POLL_INTERVAL", 250*time.Millisecond),
		NewRIDAttempts: getEnvInt("NEW_RID_ATTEMPTS", 2),

		WorkerCount:        getEnvInt("WORKER_COUNT", 8),
		MonitoredNamespace: getEnvInt("MONITORED_NAMESPACE", models.NamespaceMain),

		RegularEditThreshold: int64(getEnvInt("REGULAR_EDIT_THRESHOLD", 50)),

		DefaultChannel:     getEnv("DEFAULT_CHANNEL", "main"),
		ExternalChannel:    getEnv("EXTERNAL_CHANNEL", "external"),
		MinQueueSize:       getEnvInt("MIN_QUEUE_SIZE", 4),
		CacheCapacity:      getEnvInt("CACHE_CAPACITY", 16),
		LeaseBatchSize:     getEnvInt("LEASE_BATCH_SIZE", 10),
		ReservationHistory: getEnvInt("RESERVATION_HISTORY", 10),

		BackSearchDepth: getEnvInt("BACK_SEARCH_DEPTH", 10),

		MaintainerInterval: getEnvDuration("MAINTAINER_INTERVAL", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}
