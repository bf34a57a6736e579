package dto

import (
	"time"

	domainchat "bakramandi/internal/domain/chat"
)

// LatestMessage summarizes the newest message for conversation lists.
type LatestMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation describes one buyer/seller thread about a listing.
type Conversation struct {
	ID            string         `json:"id"`
	ListingID     string         `json:"listing_id"`
	BuyerID       string         `json:"buyer_id"`
	SellerID      string         `json:"seller_id"`
	LatestMessage *LatestMessage `json:"latest_message,omitempty"`
	UnreadCount   int            `json:"unread_count"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Message is a single chat message payload.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

// StartConversationRequest opens (or reuses) a thread for a listing.
type StartConversationRequest struct {
	ListingID string `json:"listing_id"`
	SellerID  string `json:"seller_id"`
}

// SendMessageRequest posts one message to a conversation.
type SendMessageRequest struct {
	Content string `json:"content"`
}

func MapConversation(conv domainchat.Conversation, unread int) Conversation {
	out := Conversation{
		ID:          conv.ID,
		ListingID:   conv.ListingID,
		BuyerID:     conv.BuyerID,
		SellerID:    conv.SellerID,
		UnreadCount: unread,
		CreatedAt:   conv.CreatedAt,
	}
	if conv.LatestMessage != nil {
		out.LatestMessage = &LatestMessage{
			Content:   conv.LatestMessage.Content,
			SenderID:  conv.LatestMessage.SenderID,
			CreatedAt: conv.LatestMessage.CreatedAt,
		}
	}
	return out
}

func MapMessage(msg domainchat.Message) Message {
	return Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		Read:           msg.Read,
	}
}

func MapMessages(msgs []domainchat.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, MapMessage(msg))
	}
	return out
}
