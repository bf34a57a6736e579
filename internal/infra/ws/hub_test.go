package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeRelay struct {
	mu           sync.Mutex
	participants map[string][]string
	readMarks    []string
}

func (r *fakeRelay) Participants(ctx context.Context, conversationID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[conversationID], nil
}

func (r *fakeRelay) MarkRead(ctx context.Context, conversationID, userID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readMarks = append(r.readMarks, conversationID+":"+userID)
	return time.Now().UTC(), nil
}

func (r *fakeRelay) marks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.readMarks...)
}

func startHub(t *testing.T, relay Relay) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(relay, nil)
	hub.CheckOrigin = func(*http.Request) bool { return true }
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if err := hub.Join(w, r, userID); err != nil {
			t.Errorf("Join: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dialUser(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return event
}

// waitForEvent drains frames until one with the wanted name arrives.
func waitForEvent(t *testing.T, conn *websocket.Conn, name string) Event {
	t.Helper()
	for i := 0; i < 10; i++ {
		event := readEvent(t, conn)
		if event.Event == name {
			return event
		}
	}
	t.Fatalf("event %q never arrived", name)
	return Event{}
}

func decodePresence(t *testing.T, event Event) []string {
	t.Helper()
	var data OnlineUsersData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	return data.UserIDs
}

func sendEvent(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	event, err := NewEvent(name, data)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPresenceBroadcastOnJoinAndLeave(t *testing.T) {
	_, server := startHub(t, &fakeRelay{})

	alpha := dialUser(t, server, "alpha")
	got := decodePresence(t, waitForEvent(t, alpha, EventOnlineUsers))
	if len(got) != 1 || got[0] != "alpha" {
		t.Fatalf("first snapshot = %v, want [alpha]", got)
	}

	beta := dialUser(t, server, "beta")
	got = decodePresence(t, waitForEvent(t, beta, EventOnlineUsers))
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("join snapshot = %v, want [alpha beta]", got)
	}
	// alpha sees the same snapshot.
	got = decodePresence(t, waitForEvent(t, alpha, EventOnlineUsers))
	if len(got) != 2 {
		t.Fatalf("alpha's join snapshot = %v", got)
	}

	_ = beta.Close()
	got = decodePresence(t, waitForEvent(t, alpha, EventOnlineUsers))
	if len(got) != 1 || got[0] != "alpha" {
		t.Fatalf("leave snapshot = %v, want [alpha]", got)
	}
}

func TestSendMessageRelaysToPeerOnly(t *testing.T) {
	relay := &fakeRelay{participants: map[string][]string{
		"c1": {"alpha", "beta"},
	}}
	_, server := startHub(t, relay)

	alpha := dialUser(t, server, "alpha")
	beta := dialUser(t, server, "beta")
	waitForEvent(t, alpha, EventOnlineUsers)
	waitForEvent(t, beta, EventOnlineUsers)

	sendEvent(t, alpha, EventSendMessage, MessageData{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "spoofed",
		Content:        "two goats for Eid",
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	})

	event := waitForEvent(t, beta, EventReceiveMessage)
	var data MessageData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if data.Content != "two goats for Eid" {
		t.Fatalf("content = %q", data.Content)
	}
	// Sender identity comes from the authenticated connection, not the frame.
	if data.SenderID != "alpha" {
		t.Fatalf("sender = %q, want alpha", data.SenderID)
	}

	// The sender must not receive their own relay.
	_ = alpha.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := alpha.ReadMessage(); err == nil {
		var echoed Event
		if json.Unmarshal(raw, &echoed) == nil && echoed.Event == EventReceiveMessage {
			t.Fatal("sender received its own message relay")
		}
	}
}

func TestMarkReadPersistsAndRelays(t *testing.T) {
	relay := &fakeRelay{participants: map[string][]string{
		"c1": {"alpha", "beta"},
	}}
	_, server := startHub(t, relay)

	alpha := dialUser(t, server, "alpha")
	beta := dialUser(t, server, "beta")
	waitForEvent(t, alpha, EventOnlineUsers)
	waitForEvent(t, beta, EventOnlineUsers)

	sendEvent(t, alpha, EventMarkRead, MarkReadData{ConversationID: "c1"})

	event := waitForEvent(t, beta, EventMessagesRead)
	var data MessagesReadData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if data.ConversationID != "c1" || data.ReaderID != "alpha" {
		t.Fatalf("unexpected receipt: %+v", data)
	}
	if _, err := time.Parse(time.RFC3339Nano, data.ReadAt); err != nil {
		t.Fatalf("read_at not RFC3339: %q", data.ReadAt)
	}

	marks := relay.marks()
	if len(marks) != 1 || marks[0] != "c1:alpha" {
		t.Fatalf("durable marks = %v, want [c1:alpha]", marks)
	}
}

func TestOnlineUserIDsSorted(t *testing.T) {
	_, server := startHub(t, &fakeRelay{})
	hubConns := []string{"zeta", "alpha", "mid"}
	for _, id := range hubConns {
		conn := dialUser(t, server, id)
		waitForEvent(t, conn, EventOnlineUsers)
	}
	// Last joiner's snapshot reflects everyone; verify via a fresh join.
	probe := dialUser(t, server, "probe")
	got := decodePresence(t, waitForEvent(t, probe, EventOnlineUsers))
	want := []string{"alpha", "mid", "probe", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
}
