package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// client is a single socket connection owned by the hub. A user may hold
// several at once.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger().Warn("unexpected socket close", "user_id", c.userID, "error", err)
			}
			return
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.hub.logger().Warn("invalid socket frame", "user_id", c.userID, "error", err)
			continue
		}
		c.handleEvent(event)
	}
}

func (c *client) handleEvent(event Event) {
	switch event.Event {
	case EventSendMessage:
		c.handleSendMessage(event)
	case EventMarkRead:
		c.handleMarkRead(event)
	default:
		c.hub.logger().Warn("unknown socket event", "user_id", c.userID, "event", event.Event)
	}
}

// handleSendMessage relays an already-persisted message to the other
// participant. Persistence happens over REST before the client mirrors the
// message here, so the relay is best effort.
func (c *client) handleSendMessage(event Event) {
	var data MessageData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.ConversationID == "" {
		return
	}
	// The socket identity wins over whatever the frame claims.
	data.SenderID = c.userID
	go c.hub.relayMessage(c.userID, data)
}

func (c *client) handleMarkRead(event Event) {
	var data MarkReadData
	if err := json.Unmarshal(event.Data, &data); err != nil || data.ConversationID == "" {
		return
	}
	go c.hub.relayMarkRead(context.Background(), c.userID, data.ConversationID)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
