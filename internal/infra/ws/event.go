package ws

import "encoding/json"

// Wire event names. These are part of the public protocol and must stay
// stable across client and server.
const (
	EventOnlineUsers    = "getOnlineUsers"
	EventReceiveMessage = "receiveMessage"
	EventMessagesRead   = "messagesRead"
	EventSendMessage    = "sendMessage"
	EventMarkRead       = "markMessagesAsRead"
)

// Event is the frame envelope for every socket message in both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// OnlineUsersData is the full presence snapshot broadcast on every join and
// leave. Receivers replace their presence set wholesale.
type OnlineUsersData struct {
	UserIDs []string `json:"user_ids"`
}

// MessageData mirrors a chat message over the socket.
type MessageData struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

// MarkReadData is the client request to mark a conversation read.
type MarkReadData struct {
	ConversationID string `json:"conversation_id"`
}

// MessagesReadData notifies a participant that the other side read the
// conversation.
type MessagesReadData struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	ReadAt         string `json:"read_at"`
}
