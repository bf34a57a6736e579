package chatsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bakramandi/internal/app/dto"
)

var ErrStoreClosed = errors.New("chatsync: store closed")

const handlerTimeout = 10 * time.Second

// Store is the single mutable owner of the session's chat state: the
// conversation list, the active conversation's messages, and the loading
// flag. Every mutation happens behind its mutex, and remote events flow in
// through the EventHandler methods.
//
// The store lives for one login session. Shutdown tears it down; afterwards
// no call registers new state.
type Store struct {
	API      *APIClient
	Presence *Presence
	Logger   *slog.Logger
	UserID   string

	mu            sync.Mutex
	transport     *Transport
	conversations []dto.Conversation
	messages      []dto.Message
	activeID      string
	loading       bool
	closed        bool
}

func NewStore(api *APIClient, presence *Presence, userID string, logger *slog.Logger) *Store {
	return &Store{
		API:      api,
		Presence: presence,
		UserID:   userID,
		Logger:   logger,
	}
}

// AttachTransport hands the socket connection to the store after dialing.
// The store works without one; sends then stay durable-only.
func (s *Store) AttachTransport(t *Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// Conversations returns a copy of the current list, server order preserved.
func (s *Store) Conversations() []dto.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.Conversation(nil), s.conversations...)
}

// Messages returns a copy of the active conversation's messages.
func (s *Store) Messages() []dto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.Message(nil), s.messages...)
}

// ActiveID reports the open conversation, empty when none.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Loading reports whether a visible message load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ListConversations refetches the conversation list. On failure the prior
// list stays untouched and the error is returned.
func (s *Store) ListConversations(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	items, err := s.API.ListConversations(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("conversation list refresh failed", "error", err)
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.conversations = items
	s.zeroUnreadLocked(s.activeID)
	return nil
}

// LoadMessages refetches the given conversation's messages. With silent set
// the loading flag is left alone. The result is discarded when the
// conversation is no longer the active one by the time the load resolves.
func (s *Store) LoadMessages(ctx context.Context, conversationID string, silent bool) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !silent {
		s.mu.Lock()
		if s.activeID == conversationID {
			s.loading = true
		}
		s.mu.Unlock()
	}
	items, err := s.API.ListMessages(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !silent && s.activeID == conversationID {
		s.loading = false
	}
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("message load failed", "conversation_id", conversationID, "error", err)
		}
		return err
	}
	if s.closed || s.activeID != conversationID {
		// Stale load, the user moved on.
		return nil
	}
	s.messages = items
	return nil
}

// Send appends a provisional message immediately, persists it, then swaps
// the provisional entry for the canonical one and mirrors it over the
// socket. A rejected durable call rolls the provisional entry back.
func (s *Store) Send(ctx context.Context, conversationID, content string) (dto.Message, error) {
	if err := s.ensureOpen(); err != nil {
		return dto.Message{}, err
	}
	provisional := dto.Message{
		ID:             "provisional-" + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.UserID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	s.mu.Lock()
	if s.activeID == conversationID {
		s.messages = append(s.messages, provisional)
	}
	s.mu.Unlock()

	canonical, err := s.API.SendMessage(ctx, conversationID, content)
	if err != nil {
		s.removeMessage(provisional.ID)
		return dto.Message{}, err
	}

	s.mu.Lock()
	if !s.closed && s.activeID == conversationID {
		replaced := false
		for i := range s.messages {
			if s.messages[i].ID == provisional.ID {
				s.messages[i] = canonical
				replaced = true
				break
			}
		}
		if !replaced {
			s.messages = append(s.messages, canonical)
		}
	}
	transport := s.transport
	s.mu.Unlock()

	if transport != nil {
		transport.EmitMessage(canonical)
	}
	if err := s.ListConversations(ctx); err != nil && s.Logger != nil {
		s.Logger.Warn("list refresh after send failed", "error", err)
	}
	return canonical, nil
}

// Start opens (or reuses) the conversation for a listing, puts it at the
// head of the list, and makes it the active one.
func (s *Store) Start(ctx context.Context, listingID, sellerID string) (dto.Conversation, error) {
	if err := s.ensureOpen(); err != nil {
		return dto.Conversation{}, err
	}
	conv, err := s.API.StartConversation(ctx, listingID, sellerID)
	if err != nil {
		return dto.Conversation{}, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return dto.Conversation{}, ErrStoreClosed
	}
	rest := make([]dto.Conversation, 0, len(s.conversations))
	for _, existing := range s.conversations {
		if existing.ID != conv.ID {
			rest = append(rest, existing)
		}
	}
	s.conversations = append([]dto.Conversation{conv}, rest...)
	s.activeID = conv.ID
	s.messages = nil
	s.mu.Unlock()

	if err := s.LoadMessages(ctx, conv.ID, false); err != nil && s.Logger != nil {
		s.Logger.Warn("initial message load failed", "conversation_id", conv.ID, "error", err)
	}
	s.emitReadReceipt(ctx, conv.ID)
	return conv, nil
}

// Open makes the conversation active. The displayed list clears before the
// load so the previous conversation never flashes through, then a read
// receipt zeroes the unread count.
func (s *Store) Open(ctx context.Context, conversationID string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.mu.Lock()
	s.activeID = conversationID
	s.messages = nil
	s.zeroUnreadLocked(conversationID)
	s.mu.Unlock()

	if err := s.LoadMessages(ctx, conversationID, false); err != nil {
		return err
	}
	s.emitReadReceipt(ctx, conversationID)
	return nil
}

// CloseActive deselects the active conversation and clears the displayed
// messages immediately.
func (s *Store) CloseActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
	s.messages = nil
	s.loading = false
}

// Shutdown ends the session: the transport closes exactly once and no
// further state registers.
func (s *Store) Shutdown() {
	s.mu.Lock()
	s.closed = true
	transport := s.transport
	s.transport = nil
	s.conversations = nil
	s.messages = nil
	s.activeID = ""
	s.loading = false
	s.mu.Unlock()
	if transport != nil {
		transport.Close()
	}
}

// HandlePresenceSnapshot replaces the presence set with the snapshot.
func (s *Store) HandlePresenceSnapshot(userIDs []string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.Presence == nil {
		return
	}
	s.Presence.Apply(userIDs)
}

// HandleMessageReceived reconciles an incoming message. For the active
// conversation the message list is silently refetched and a read receipt
// goes out, so the unread count stays at zero. For any other conversation
// only the list summary refreshes.
func (s *Store) HandleMessageReceived(msg dto.Message) {
	s.mu.Lock()
	closed := s.closed
	active := s.activeID
	s.mu.Unlock()
	if closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if msg.ConversationID == active {
		if err := s.LoadMessages(ctx, msg.ConversationID, true); err != nil && s.Logger != nil {
			s.Logger.Warn("refetch after receive failed", "conversation_id", msg.ConversationID, "error", err)
		}
		s.emitReadReceipt(ctx, msg.ConversationID)
	}
	if err := s.ListConversations(ctx); err != nil && s.Logger != nil {
		s.Logger.Warn("list refresh after receive failed", "error", err)
	}
}

// HandleReadReceipt marks this user's messages in the conversation as read.
func (s *Store) HandleReadReceipt(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.activeID == conversationID {
		for i := range s.messages {
			if s.messages[i].SenderID == s.UserID {
				s.messages[i].Read = true
			}
		}
	}
	s.zeroUnreadLocked(conversationID)
}

// emitReadReceipt prefers the socket path, which persists the marker and
// relays to the peer in one hop. Without a transport the durable REST call
// stands in.
func (s *Store) emitReadReceipt(ctx context.Context, conversationID string) {
	s.mu.Lock()
	transport := s.transport
	s.zeroUnreadLocked(conversationID)
	s.mu.Unlock()

	if transport != nil {
		transport.MarkRead(conversationID)
		return
	}
	if err := s.API.MarkRead(ctx, conversationID); err != nil && s.Logger != nil {
		s.Logger.Warn("read receipt failed", "conversation_id", conversationID, "error", err)
	}
}

func (s *Store) removeMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, msg := range s.messages {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	s.messages = kept
}

func (s *Store) zeroUnreadLocked(conversationID string) {
	if conversationID == "" {
		return
	}
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].UnreadCount = 0
		}
	}
}

func (s *Store) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.API == nil {
		return errors.New("chatsync: api client required")
	}
	return nil
}

var _ EventHandler = (*Store)(nil)
