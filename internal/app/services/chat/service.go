package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "bakramandi/internal/app/outbox"
	domainchat "bakramandi/internal/domain/chat"
	domainlistings "bakramandi/internal/domain/listings"
)

// ConversationView pairs a conversation with the requesting user's unread count.
type ConversationView struct {
	Conversation domainchat.Conversation
	UnreadCount  int
}

// Service owns all conversation, message, and read-marker use cases.
type Service struct {
	Store    domainchat.Store
	Listings domainlistings.Repository
	Outbox   appoutbox.Outbox
	Encoder  appoutbox.EventEncoder
	Logger   *slog.Logger

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// StartConversation opens a buyer/seller thread for a listing, reusing an
// existing one when the same pair already talked about that listing.
func (s *Service) StartConversation(ctx context.Context, buyerID, listingID, sellerID string) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	buyerID = strings.TrimSpace(buyerID)
	listingID = strings.TrimSpace(listingID)
	sellerID = strings.TrimSpace(sellerID)

	if s.Listings != nil {
		listing, err := s.Listings.ByID(ctx, domainlistings.ListingID(listingID))
		if err != nil {
			return nil, err
		}
		// Listing is authoritative for who the seller is.
		sellerID = listing.SellerID
	}

	existing, err := s.Store.ConversationByListing(ctx, listingID, buyerID, sellerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainchat.ErrConversationNotFound) {
		return nil, err
	}

	conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        uuid.NewString(),
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("conversation started", "conversation_id", conv.ID, "listing_id", listingID, "buyer_id", buyerID, "seller_id", sellerID)
	}
	return conv, nil
}

// ListConversations returns the user's threads, newest activity first, with
// per-thread unread counts.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conversations, err := s.Store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := s.Store.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("unread count failed", "conversation_id", conv.ID, "error", err)
			}
			unread = 0
		}
		views = append(views, ConversationView{Conversation: conv, UnreadCount: unread})
	}
	return views, nil
}

// ListMessages returns a conversation's messages oldest first. The read flag
// on each message reflects whether its recipient's marker covers it.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string) ([]domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	markers := map[string]time.Time{}
	for _, participant := range conv.Participants() {
		marker, err := s.Store.ReadMarker(ctx, conversationID, participant)
		if err != nil {
			continue
		}
		markers[participant] = marker
	}
	for i := range messages {
		recipient := conv.Counterpart(messages[i].SenderID)
		marker, ok := markers[recipient]
		messages[i].Read = ok && !marker.Before(messages[i].CreatedAt)
	}
	return messages, nil
}

// SendMessage durably appends a message, updates the latest-message summary,
// and records a message-sent event for the outbox.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	// The sender has obviously seen everything up to their own message.
	if err := s.Store.MarkRead(ctx, conv.ID, senderID, msg.CreatedAt); err != nil && s.Logger != nil {
		s.Logger.Warn("sender read marker update failed", "conversation_id", conv.ID, "error", err)
	}
	if err := appoutbox.Record(ctx, s.Outbox, s.Encoder, domainchat.MessageSent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		ListingID:      conv.ListingID,
		SenderID:       senderID,
		RecipientID:    conv.Counterpart(senderID),
		SentAt:         msg.CreatedAt,
	}); err != nil && s.Logger != nil {
		s.Logger.Warn("outbox record failed", "conversation_id", conv.ID, "error", err)
	}
	return msg, nil
}

// MarkRead moves the user's read marker to now and returns the marker time.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error) {
	if err := s.ensureDependencies(); err != nil {
		return time.Time{}, err
	}
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return time.Time{}, err
	}
	at := s.now()
	if err := s.Store.MarkRead(ctx, conversationID, userID, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// Participants resolves the two user ids of a conversation.
func (s *Service) Participants(ctx context.Context, conversationID string) ([]string, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.Store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Participants(), nil
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) (*domainchat.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, domainchat.ErrConversationNotFound
	}
	conv, err := s.Store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domainchat.ErrNotParticipant
	}
	return conv, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ensureDependencies() error {
	if s.Store == nil {
		return errors.New("chat: store required")
	}
	return nil
}
