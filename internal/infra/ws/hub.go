package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrHubClosed = errors.New("ws: hub closed")

// Relay resolves conversation participants and applies durable read markers
// for events arriving over the socket. The chat service implements it.
type Relay interface {
	Participants(ctx context.Context, conversationID string) ([]string, error)
	MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error)
}

// Hub tracks connected users and fans socket events out to them.
type Hub struct {
	Relay  Relay
	Logger *slog.Logger

	CheckOrigin func(r *http.Request) bool

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	register   chan *client
	unregister chan *client
	done       chan struct{}
	once       sync.Once
}

func NewHub(relay Relay, logger *slog.Logger) *Hub {
	return &Hub{
		Relay:      relay,
		Logger:     logger,
		clients:    make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns the register/unregister loop. Start it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
			h.broadcastPresence()
		case c := <-h.unregister:
			if h.removeClient(c) {
				h.broadcastPresence()
			}
		case <-h.done:
			return
		}
	}
}

// Join upgrades the request and attaches the connection to the hub.
func (h *Hub) Join(w http.ResponseWriter, r *http.Request, userID string) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return ErrHubClosed
	}
	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.logger().Info("socket connected", "user_id", c.userID, "connections", len(h.clients[c.userID]))
}

// removeClient reports whether the user fully disconnected.
func (h *Hub) removeClient(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, exists := clients[c]; !exists {
		return false
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.userID)
		h.logger().Info("socket disconnected", "user_id", c.userID)
		return true
	}
	return false
}

// OnlineUserIDs returns the ids of all currently connected users, sorted.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) broadcastPresence() {
	event, err := NewEvent(EventOnlineUsers, OnlineUsersData{UserIDs: h.OnlineUserIDs()})
	if err != nil {
		return
	}
	h.broadcastAll(event)
}

func (h *Hub) broadcastAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger().Warn("marshal broadcast event failed", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for c := range clients {
			h.push(c, data)
		}
	}
}

// SendToUser delivers an event to every connection of one user.
func (h *Hub) SendToUser(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger().Warn("marshal user event failed", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		h.push(c, data)
	}
}

func (h *Hub) push(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		// Slow consumer, drop the connection instead of blocking the hub.
		go func() {
			select {
			case h.unregister <- c:
			case <-h.done:
			}
		}()
	}
}

// relayMessage forwards a freshly sent message to the other participant.
func (h *Hub) relayMessage(senderID string, data MessageData) {
	if h.Relay == nil {
		return
	}
	participants, err := h.Relay.Participants(context.Background(), data.ConversationID)
	if err != nil {
		h.logger().Warn("relay participants lookup failed", "conversation_id", data.ConversationID, "error", err)
		return
	}
	event, err := NewEvent(EventReceiveMessage, data)
	if err != nil {
		return
	}
	for _, userID := range participants {
		if userID == senderID {
			continue
		}
		h.SendToUser(userID, event)
	}
}

// relayMarkRead records the reader's marker and notifies the counterpart.
func (h *Hub) relayMarkRead(ctx context.Context, readerID, conversationID string) {
	if h.Relay == nil {
		return
	}
	readAt, err := h.Relay.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		h.logger().Warn("relay mark read failed", "conversation_id", conversationID, "user_id", readerID, "error", err)
		return
	}
	participants, err := h.Relay.Participants(ctx, conversationID)
	if err != nil {
		return
	}
	event, err := NewEvent(EventMessagesRead, MessagesReadData{
		ConversationID: conversationID,
		ReaderID:       readerID,
		ReadAt:         readAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	for _, userID := range participants {
		if userID == readerID {
			continue
		}
		h.SendToUser(userID, event)
	}
}

// Shutdown closes every connection and stops the run loop.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for c := range clients {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
