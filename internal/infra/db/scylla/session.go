package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SessionParams carries everything needed to connect and prepare the schema.
type SessionParams struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	Timeout           time.Duration
	ReplicationFactor int
}

// NewSession ensures schema exists and returns a connected Scylla session.
func NewSession(params SessionParams, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(params.Keyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", params.Keyspace)
	}
	if params.Timeout <= 0 {
		params.Timeout = 5 * time.Second
	}
	if params.ReplicationFactor <= 0 {
		params.ReplicationFactor = 1
	}

	baseCluster := newCluster(params, "")
	baseSession, err := baseCluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()

	if err := ensureKeyspace(context.Background(), baseSession, params); err != nil {
		return nil, err
	}

	cluster := newCluster(params, params.Keyspace)
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", params.Keyspace, err)
	}
	if err := ensureTables(context.Background(), session, params.Keyspace); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", params.Hosts, "keyspace", params.Keyspace)
	}
	return session, nil
}

func newCluster(params SessionParams, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(params.Hosts...)
	cluster.Timeout = params.Timeout
	cluster.Consistency = gocql.Quorum
	if keyspace != "" {
		cluster.Keyspace = keyspace
	}
	if params.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: params.Username,
			Password: params.Password,
		}
		cluster.ConnectTimeout = params.Timeout
	}
	return cluster
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, params SessionParams) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		params.Keyspace, params.ReplicationFactor,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session, keyspace string) error {
	conversations := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.chat_conversations (
	id text PRIMARY KEY,
	listing_id text,
	buyer_id text,
	seller_id text,
	latest_message_id text,
	latest_message_sender_id text,
	latest_message_content text,
	latest_message_at timestamp,
	created_at timestamp,
	last_message_at timestamp
);`, keyspace)
	if err := session.Query(conversations).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create chat_conversations table: %w", err)
	}

	messages := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.chat_messages (
	conversation_id text,
	created_at timestamp,
	message_id text,
	sender_id text,
	content text,
	PRIMARY KEY (conversation_id, created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at ASC, message_id ASC);`, keyspace)
	if err := session.Query(messages).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create chat_messages table: %w", err)
	}

	reads := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.chat_reads (
	conversation_id text,
	user_id text,
	read_at timestamp,
	PRIMARY KEY (conversation_id, user_id)
);`, keyspace)
	if err := session.Query(reads).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create chat_reads table: %w", err)
	}
	return nil
}
