package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrIDRequired           = errors.New("chat: id is required")
	ErrListingRequired      = errors.New("chat: listing id is required")
	ErrBuyerRequired        = errors.New("chat: buyer id is required")
	ErrSellerRequired       = errors.New("chat: seller id is required")
	ErrSelfConversation     = errors.New("chat: buyer and seller must differ")
	ErrNotParticipant       = errors.New("chat: not a conversation participant")
	ErrContentRequired      = errors.New("chat: message content is required")
	ErrSenderRequired       = errors.New("chat: sender id is required")
)

// LatestMessage is the denormalized summary shown in conversation lists.
type LatestMessage struct {
	ID        string
	Content   string
	SenderID  string
	CreatedAt time.Time
}

// Conversation is a chat thread between a buyer and a seller about one listing.
type Conversation struct {
	ID            string
	ListingID     string
	BuyerID       string
	SellerID      string
	LatestMessage *LatestMessage
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is immutable once created; only the read flag changes afterwards.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Read           bool
}

type CreateConversationParams struct {
	ID        string
	ListingID string
	BuyerID   string
	SellerID  string
	CreatedAt time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	listingID := strings.TrimSpace(params.ListingID)
	if listingID == "" {
		return nil, ErrListingRequired
	}
	buyerID := strings.TrimSpace(params.BuyerID)
	if buyerID == "" {
		return nil, ErrBuyerRequired
	}
	sellerID := strings.TrimSpace(params.SellerID)
	if sellerID == "" {
		return nil, ErrSellerRequired
	}
	if buyerID == sellerID {
		return nil, ErrSelfConversation
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:            id,
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		CreatedAt:     now,
		LastMessageAt: now,
	}, nil
}

// HasParticipant reports whether the given user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	return c.BuyerID == userID || c.SellerID == userID
}

// Counterpart returns the other participant, or "" when userID is not one.
func (c *Conversation) Counterpart(userID string) string {
	switch strings.TrimSpace(userID) {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	default:
		return ""
	}
}

// Participants returns both participant identifiers.
func (c *Conversation) Participants() []string {
	return []string{c.BuyerID, c.SellerID}
}

// RecordMessage refreshes the latest-message summary after an append.
func (c *Conversation) RecordMessage(msg *Message) {
	if msg == nil {
		return
	}
	c.LatestMessage = &LatestMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		CreatedAt: msg.CreatedAt,
	}
	c.LastMessageAt = msg.CreatedAt
}

type CreateMessageParams struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

func NewMessage(params CreateMessageParams) (*Message, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	conversationID := strings.TrimSpace(params.ConversationID)
	if conversationID == "" {
		return nil, ErrConversationNotFound
	}
	senderID := strings.TrimSpace(params.SenderID)
	if senderID == "" {
		return nil, ErrSenderRequired
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, ErrContentRequired
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now.UTC(),
	}, nil
}

// Store owns durable conversation, message, and read-marker state.
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	ConversationByID(ctx context.Context, id string) (*Conversation, error)
	// ConversationByListing locates an existing thread for the listing and
	// participant pair, or returns ErrConversationNotFound.
	ConversationByListing(ctx context.Context, listingID, buyerID, sellerID string) (*Conversation, error)
	// ListConversations returns the user's conversations ordered by most
	// recent activity first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	AppendMessage(ctx context.Context, msg *Message) error
	// ListMessages returns the conversation's messages oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	// MarkRead upserts the user's read marker for the conversation.
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
	// ReadMarker returns the zero time when the user never read the conversation.
	ReadMarker(ctx context.Context, conversationID, userID string) (time.Time, error)
	// UnreadCount counts messages sent to userID after their read marker.
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
}
