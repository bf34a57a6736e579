package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	ChatStore          string
	MongoURI           string
	MongoDB            string
	ScyllaHosts        []string
	ScyllaKeyspace     string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	SessionTTL         time.Duration
	WSAllowedOrigins   []string
}

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreScylla = "scylla"
)

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		ChatStore:        strings.ToLower(getEnv("CHAT_STORE", StoreMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "bakramandi"),
		ScyllaKeyspace:   getEnv("SCYLLA_KEYSPACE", "bakramandi_chat"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
	}
	cfg.ScyllaHosts = splitList(os.Getenv("SCYLLA_HOSTS"))
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.WSAllowedOrigins = splitList(os.Getenv("WS_ALLOWED_ORIGINS"))

	poll, err := parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboxPollInterval = poll

	sessionTTL, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL = sessionTTL

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	switch cfg.ChatStore {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when CHAT_STORE=mongo")
		}
	case StoreScylla:
		if len(cfg.ScyllaHosts) == 0 {
			return Config{}, fmt.Errorf("SCYLLA_HOSTS is required when CHAT_STORE=scylla")
		}
	default:
		return Config{}, fmt.Errorf("unknown CHAT_STORE %q", cfg.ChatStore)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
