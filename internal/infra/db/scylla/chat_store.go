package scylla

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	domainchat "bakramandi/internal/domain/chat"
)

// ChatStore wraps Scylla queries for conversations, messages, and read markers.
type ChatStore struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewChatStore(session *gocql.Session, logger *slog.Logger) *ChatStore {
	return &ChatStore{session: session, logger: logger}
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	return s.session.
		Query(`INSERT INTO chat_conversations (id, listing_id, buyer_id, seller_id, created_at, last_message_at) VALUES (?, ?, ?, ?, ?, ?)`,
			conv.ID, conv.ListingID, conv.BuyerID, conv.SellerID, conv.CreatedAt, conv.LastMessageAt).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	var row conversationRow
	err := s.session.
		Query(`SELECT id, listing_id, buyer_id, seller_id, latest_message_id, latest_message_sender_id, latest_message_content, latest_message_at, created_at, last_message_at FROM chat_conversations WHERE id = ? LIMIT 1`, strings.TrimSpace(id)).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&row.ID, &row.ListingID, &row.BuyerID, &row.SellerID, &row.LatestMessageID, &row.LatestSenderID, &row.LatestContent, &row.LatestAt, &row.CreatedAt, &row.LastMessageAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return row.toAggregate(), nil
}

func (s *ChatStore) ConversationByListing(ctx context.Context, listingID, buyerID, sellerID string) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	iter := s.session.
		Query(`SELECT id, listing_id, buyer_id, seller_id, latest_message_id, latest_message_sender_id, latest_message_content, latest_message_at, created_at, last_message_at FROM chat_conversations WHERE listing_id = ? ALLOW FILTERING`, listingID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	var row conversationRow
	for iter.Scan(&row.ID, &row.ListingID, &row.BuyerID, &row.SellerID, &row.LatestMessageID, &row.LatestSenderID, &row.LatestContent, &row.LatestAt, &row.CreatedAt, &row.LastMessageAt) {
		if row.BuyerID == buyerID && row.SellerID == sellerID {
			conv := row.toAggregate()
			if err := iter.Close(); err != nil {
				return nil, err
			}
			return conv, nil
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return nil, domainchat.ErrConversationNotFound
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	out := make([]domainchat.Conversation, 0)
	for _, column := range []string{"buyer_id", "seller_id"} {
		iter := s.session.
			Query(`SELECT id, listing_id, buyer_id, seller_id, latest_message_id, latest_message_sender_id, latest_message_content, latest_message_at, created_at, last_message_at FROM chat_conversations WHERE `+column+` = ? ALLOW FILTERING`, userID).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
		var row conversationRow
		for iter.Scan(&row.ID, &row.ListingID, &row.BuyerID, &row.SellerID, &row.LatestMessageID, &row.LatestSenderID, &row.LatestContent, &row.LatestAt, &row.CreatedAt, &row.LastMessageAt) {
			out = append(out, *row.toAggregate())
		}
		if err := iter.Close(); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg *domainchat.Message) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	if _, err := s.ConversationByID(ctx, msg.ConversationID); err != nil {
		return err
	}
	if err := s.session.
		Query(`INSERT INTO chat_messages (conversation_id, created_at, message_id, sender_id, content) VALUES (?, ?, ?, ?, ?)`,
			msg.ConversationID, msg.CreatedAt, msg.ID, msg.SenderID, msg.Content).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return err
	}
	// best-effort update of the conversation summary
	if err := s.session.
		Query(`UPDATE chat_conversations SET last_message_at = ?, latest_message_id = ?, latest_message_sender_id = ?, latest_message_content = ?, latest_message_at = ? WHERE id = ?`,
			msg.CreatedAt, msg.ID, msg.SenderID, msg.Content, msg.CreatedAt, msg.ConversationID).
		WithContext(ctx).
		Consistency(gocql.One).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update latest message meta", "error", err, "conversation_id", msg.ConversationID)
	}
	return nil
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	if _, err := s.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	iter := s.session.
		Query(`SELECT conversation_id, created_at, message_id, sender_id, content FROM chat_messages WHERE conversation_id = ?`, conversationID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	messages := make([]domainchat.Message, 0)
	var (
		convID    string
		createdAt time.Time
		messageID string
		senderID  string
		content   string
	)
	for iter.Scan(&convID, &createdAt, &messageID, &senderID, &content) {
		messages = append(messages, domainchat.Message{
			ID:             messageID,
			ConversationID: convID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      createdAt.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *ChatStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	current, err := s.ReadMarker(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !at.After(current) {
		return nil
	}
	return s.session.
		Query(`INSERT INTO chat_reads (conversation_id, user_id, read_at) VALUES (?, ?, ?)`,
			conversationID, userID, at.UTC()).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (s *ChatStore) ReadMarker(ctx context.Context, conversationID, userID string) (time.Time, error) {
	if s.session == nil {
		return time.Time{}, errors.New("scylla session not initialized")
	}
	var readAt time.Time
	err := s.session.
		Query(`SELECT read_at FROM chat_reads WHERE conversation_id = ? AND user_id = ?`, conversationID, userID).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&readAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return readAt.UTC(), nil
}

func (s *ChatStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	if s.session == nil {
		return 0, errors.New("scylla session not initialized")
	}
	marker, err := s.ReadMarker(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	iter := s.session.
		Query(`SELECT created_at, sender_id FROM chat_messages WHERE conversation_id = ? AND created_at > ?`, conversationID, marker).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	count := 0
	var (
		createdAt time.Time
		senderID  string
	)
	for iter.Scan(&createdAt, &senderID) {
		if senderID != userID {
			count++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	return count, nil
}

type conversationRow struct {
	ID              string
	ListingID       string
	BuyerID         string
	SellerID        string
	LatestMessageID string
	LatestSenderID  string
	LatestContent   string
	LatestAt        time.Time
	CreatedAt       time.Time
	LastMessageAt   time.Time
}

func (r conversationRow) toAggregate() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:            r.ID,
		ListingID:     r.ListingID,
		BuyerID:       r.BuyerID,
		SellerID:      r.SellerID,
		CreatedAt:     r.CreatedAt.UTC(),
		LastMessageAt: r.LastMessageAt.UTC(),
	}
	if r.LatestMessageID != "" {
		conv.LatestMessage = &domainchat.LatestMessage{
			ID:        r.LatestMessageID,
			SenderID:  r.LatestSenderID,
			Content:   r.LatestContent,
			CreatedAt: r.LatestAt.UTC(),
		}
	}
	return conv
}

var _ domainchat.Store = (*ChatStore)(nil)
