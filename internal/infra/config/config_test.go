package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "HTTP_ADDR", "CHAT_STORE", "MONGO_URI", "MONGO_DB",
		"SCYLLA_HOSTS", "SCYLLA_KEYSPACE", "KAFKA_BROKERS",
		"KAFKA_TOPIC_PREFIX", "OUTBOX_POLL_INTERVAL", "RETRY_BACKOFF",
		"SESSION_TTL", "WS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "dev" || cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ChatStore != StoreMemory {
		t.Fatalf("ChatStore = %q, want memory", cfg.ChatStore)
	}
	if cfg.OutboxPollInterval != 500*time.Millisecond {
		t.Fatalf("OutboxPollInterval = %v", cfg.OutboxPollInterval)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	want := []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
	if len(cfg.RetryBackoff) != len(want) {
		t.Fatalf("RetryBackoff = %v, want %v", cfg.RetryBackoff, want)
	}
	for i := range want {
		if cfg.RetryBackoff[i] != want[i] {
			t.Fatalf("RetryBackoff = %v, want %v", cfg.RetryBackoff, want)
		}
	}
}

func TestLoadMongoRequiresURI(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_STORE", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without MONGO_URI")
	}
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChatStore != StoreMongo || cfg.MongoDB != "bakramandi" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadScyllaRequiresHosts(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_STORE", "scylla")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SCYLLA_HOSTS")
	}
	t.Setenv("SCYLLA_HOSTS", "node1:9042, node2:9042")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ScyllaHosts) != 2 || cfg.ScyllaHosts[1] != "node2:9042" {
		t.Fatalf("ScyllaHosts = %v", cfg.ScyllaHosts)
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_STORE", "cassette")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}

	clearEnv(t)
	t.Setenv("RETRY_BACKOFF", "1s,never")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid backoff component")
	}
}

func TestLoadParsesLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKERS", "broker1:9092 , broker2:9092,")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://bakramandi.pk")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker1:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if len(cfg.WSAllowedOrigins) != 1 {
		t.Fatalf("WSAllowedOrigins = %v", cfg.WSAllowedOrigins)
	}
}
