package chatsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bakramandi/internal/app/dto"
	"bakramandi/internal/infra/ws"
)

// EventHandler receives decoded socket events. Exactly one component (the
// Store) implements it so there is a single owner for every connection.
type EventHandler interface {
	HandlePresenceSnapshot(userIDs []string)
	HandleMessageReceived(msg dto.Message)
	HandleReadReceipt(conversationID string)
}

// Transport owns the single websocket connection of a session. It never
// reconnects on its own: when the connection dies Done is closed and the
// owner decides whether to dial again.
type Transport struct {
	conn    *websocket.Conn
	handler EventHandler
	logger  *slog.Logger

	writeMu sync.Mutex
	// dispatchMu makes handler invocation atomic with Close: once Close
	// returns, no handler call is running or will start.
	dispatchMu sync.Mutex
	once       sync.Once
	done       chan struct{}
}

// Dial connects to the realtime endpoint. baseURL is the http(s) address of
// the backend; the bearer token rides in the query string because browser
// sockets cannot set headers.
func Dial(ctx context.Context, baseURL, token string, handler EventHandler, logger *slog.Logger) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		conn:    conn,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// EmitMessage mirrors an already-persisted message to the peer. Best effort:
// failures are logged, never surfaced.
func (t *Transport) EmitMessage(msg dto.Message) {
	t.write(ws.EventSendMessage, ws.MessageData{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// MarkRead emits a read receipt for a conversation.
func (t *Transport) MarkRead(conversationID string) {
	t.write(ws.EventMarkRead, ws.MarkReadData{ConversationID: conversationID})
}

func (t *Transport) write(name string, data any) {
	event, err := ws.NewEvent(name, data)
	if err != nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.done:
		return
	default:
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil && t.logger != nil {
		t.logger.Warn("socket write failed", "event", name, "error", err)
	}
}

func (t *Transport) readLoop() {
	defer t.Close()
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if t.logger != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("socket read failed", "error", err)
			}
			return
		}
		var event ws.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			if t.logger != nil {
				t.logger.Warn("invalid socket frame", "error", err)
			}
			continue
		}
		t.dispatch(event)
	}
}

func (t *Transport) dispatch(event ws.Event) {
	if t.handler == nil {
		return
	}
	t.dispatchMu.Lock()
	defer t.dispatchMu.Unlock()
	select {
	case <-t.done:
		return
	default:
	}
	switch event.Event {
	case ws.EventOnlineUsers:
		var data ws.OnlineUsersData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		t.handler.HandlePresenceSnapshot(data.UserIDs)
	case ws.EventReceiveMessage:
		var data ws.MessageData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, data.CreatedAt)
		t.handler.HandleMessageReceived(dto.Message{
			ID:             data.ID,
			ConversationID: data.ConversationID,
			SenderID:       data.SenderID,
			Content:        data.Content,
			CreatedAt:      createdAt,
		})
	case ws.EventMessagesRead:
		var data ws.MessagesReadData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return
		}
		t.handler.HandleReadReceipt(data.ConversationID)
	default:
		if t.logger != nil {
			t.logger.Debug("ignoring socket event", "event", event.Event)
		}
	}
}

// Close tears the connection down exactly once. It waits for any in-flight
// handler to return, so no handler fires after Close.
func (t *Transport) Close() {
	t.once.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = t.conn.Close()
	})
	// Taking the dispatch lock fences out any handler that was already
	// running when done closed.
	t.dispatchMu.Lock()
	defer t.dispatchMu.Unlock()
}

// Done is closed when the connection is gone, whether by Close or by a read
// failure.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}
