package chat

import (
	"time"

	"bakramandi/internal/domain/shared/events"
)

// MessageSent is emitted after a message is durably stored.
type MessageSent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	SentAt         time.Time `json:"sent_at"`
}

func (e MessageSent) EventName() string { return "chat.message_sent" }

func (e MessageSent) AggregateID() string { return e.ConversationID }

func (e MessageSent) OccurredAt() time.Time { return e.SentAt }

var _ events.DomainEvent = MessageSent{}
