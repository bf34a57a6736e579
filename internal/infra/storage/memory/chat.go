package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainchat "bakramandi/internal/domain/chat"
)

// ChatStore keeps conversations, messages, and read markers in memory.
// Not suitable for production.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	messages      map[string][]domainchat.Message
	readMarkers   map[string]map[string]time.Time
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]*domainchat.Conversation),
		messages:      make(map[string][]domainchat.Message),
		readMarkers:   make(map[string]map[string]time.Time),
	}
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || strings.TrimSpace(conv.ID) == "" {
		return domainchat.ErrIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[strings.TrimSpace(id)]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *ChatStore) ConversationByListing(ctx context.Context, listingID, buyerID, sellerID string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.ListingID == listingID && conv.HasParticipant(buyerID) && conv.HasParticipant(sellerID) {
			return cloneConversation(conv), nil
		}
	}
	return nil, domainchat.ErrConversationNotFound
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainchat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg *domainchat.Message) error {
	if msg == nil || strings.TrimSpace(msg.ID) == "" {
		return domainchat.ErrIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	conv.RecordMessage(msg)
	return nil
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return append([]domainchat.Message(nil), s.messages[conversationID]...), nil
}

func (s *ChatStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return domainchat.ErrConversationNotFound
	}
	markers, ok := s.readMarkers[conversationID]
	if !ok {
		markers = make(map[string]time.Time)
		s.readMarkers[conversationID] = markers
	}
	// Markers only move forward.
	if at.After(markers[userID]) {
		markers[userID] = at.UTC()
	}
	return nil
}

func (s *ChatStore) ReadMarker(ctx context.Context, conversationID, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if markers, ok := s.readMarkers[conversationID]; ok {
		return markers[userID], nil
	}
	return time.Time{}, nil
}

func (s *ChatStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var marker time.Time
	if markers, ok := s.readMarkers[conversationID]; ok {
		marker = markers[userID]
	}
	count := 0
	for _, msg := range s.messages[conversationID] {
		if msg.SenderID != userID && msg.CreatedAt.After(marker) {
			count++
		}
	}
	return count, nil
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.LatestMessage != nil {
		latest := *c.LatestMessage
		out.LatestMessage = &latest
	}
	return &out
}

var _ domainchat.Store = (*ChatStore)(nil)
