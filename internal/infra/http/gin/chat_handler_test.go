package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bakramandi/internal/app/dto"
	appoutbox "bakramandi/internal/app/outbox"
	authsvc "bakramandi/internal/app/services/auth"
	chatsvc "bakramandi/internal/app/services/chat"
	domainlistings "bakramandi/internal/domain/listings"
	"bakramandi/internal/infra/config"
	"bakramandi/internal/infra/obs"
	infraoutbox "bakramandi/internal/infra/outbox"
	"bakramandi/internal/infra/security"
	"bakramandi/internal/infra/storage/memory"
)

type testEnv struct {
	server   *httptest.Server
	listings *memory.ListingRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	listingRepo := memory.NewListingRepository()
	authService := &authsvc.Service{
		Users:     memory.NewUserRepository(),
		Sessions:  memory.NewSessionStore(),
		Passwords: security.BcryptHasher{},
		Tokens:    security.RandomTokenGenerator{},
		Logger:    logger,
	}
	chatService := &chatsvc.Service{
		Store:    memory.NewChatStore(),
		Listings: listingRepo,
		Outbox:   infraoutbox.NewMemoryStore(),
		Encoder:  appoutbox.JSONEventEncoder{},
		Logger:   logger,
	}

	server := NewServer(config.Config{Env: "test"}, obs.Middleware{Logger: logger}, obs.HealthHandlers{}, Handlers{
		Auth:           AuthHandler{Service: authService, Logger: logger},
		Chat:           ChatHandler{Service: chatService, Logger: logger},
		AuthMiddleware: AuthMiddleware{Service: authService, Logger: logger}.Handle,
	})
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, listings: listingRepo}
}

// addListing seeds the fixture listing "l1" owned by the given seller.
func (e *testEnv) addListing(t *testing.T, sellerID string) {
	t.Helper()
	listing, err := domainlistings.New("l1", "Kajla ram, 60kg", sellerID, time.Now())
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if err := e.listings.Save(context.Background(), listing); err != nil {
		t.Fatalf("save listing: %v", err)
	}
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func (e *testEnv) register(t *testing.T, email, name string) dto.AuthResponse {
	t.Helper()
	var auth dto.AuthResponse
	resp := e.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":        email,
		"name":         name,
		"password":     "correcthorse",
		"want_to_sell": true,
	}, &auth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	if auth.Token == "" || auth.User.ID == "" {
		t.Fatalf("incomplete auth response: %+v", auth)
	}
	return auth
}

type itemsOf[T any] struct {
	Items []T `json:"items"`
}

func TestChatEndpointsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/api/chats", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp = env.doJSON(t, http.MethodGet, "/api/chats", "bogus-token", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestChatFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.register(t, "buyer@example.com", "Buyer")
	seller := env.register(t, "seller@example.com", "Seller")
	env.addListing(t, seller.User.ID)

	var conv dto.Conversation
	resp := env.doJSON(t, http.MethodPost, "/api/chats", buyer.Token, dto.StartConversationRequest{
		ListingID: "l1",
	}, &conv)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	if conv.BuyerID != buyer.User.ID || conv.SellerID != seller.User.ID {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	var msg dto.Message
	resp = env.doJSON(t, http.MethodPost, "/api/chats/"+conv.ID+"/messages", buyer.Token, dto.SendMessageRequest{
		Content: "is the ram still available?",
	}, &msg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	if msg.SenderID != buyer.User.ID || msg.Read {
		t.Fatalf("unexpected message: %+v", msg)
	}

	var sellerList itemsOf[dto.Conversation]
	resp = env.doJSON(t, http.MethodGet, "/api/chats", seller.Token, nil, &sellerList)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if len(sellerList.Items) != 1 || sellerList.Items[0].UnreadCount != 1 {
		t.Fatalf("seller list = %+v, want one conversation with unread 1", sellerList.Items)
	}
	if sellerList.Items[0].LatestMessage == nil || sellerList.Items[0].LatestMessage.Content != "is the ram still available?" {
		t.Fatalf("latest message summary missing: %+v", sellerList.Items[0])
	}

	var readResp struct {
		ReadAt time.Time `json:"read_at"`
	}
	resp = env.doJSON(t, http.MethodPost, "/api/chats/"+conv.ID+"/read", seller.Token, nil, &readResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d", resp.StatusCode)
	}
	if readResp.ReadAt.IsZero() {
		t.Fatal("read_at missing")
	}

	var buyerMessages itemsOf[dto.Message]
	resp = env.doJSON(t, http.MethodGet, "/api/chats/"+conv.ID+"/messages", buyer.Token, nil, &buyerMessages)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d", resp.StatusCode)
	}
	if len(buyerMessages.Items) != 1 || !buyerMessages.Items[0].Read {
		t.Fatalf("buyer messages = %+v, want read flag set", buyerMessages.Items)
	}

	var sellerListAfter itemsOf[dto.Conversation]
	env.doJSON(t, http.MethodGet, "/api/chats", seller.Token, nil, &sellerListAfter)
	if sellerListAfter.Items[0].UnreadCount != 0 {
		t.Fatalf("seller unread = %d after read, want 0", sellerListAfter.Items[0].UnreadCount)
	}
}

func TestStartConversationReusesExistingThread(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.register(t, "buyer@example.com", "Buyer")
	seller := env.register(t, "seller@example.com", "Seller")
	env.addListing(t, seller.User.ID)

	var first, second dto.Conversation
	env.doJSON(t, http.MethodPost, "/api/chats", buyer.Token, dto.StartConversationRequest{ListingID: "l1"}, &first)
	env.doJSON(t, http.MethodPost, "/api/chats", buyer.Token, dto.StartConversationRequest{ListingID: "l1"}, &second)
	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("expected one thread, got %q and %q", first.ID, second.ID)
	}
}

func TestChatForbiddenForNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.register(t, "buyer@example.com", "Buyer")
	seller := env.register(t, "seller@example.com", "Seller")
	stranger := env.register(t, "stranger@example.com", "Stranger")
	env.addListing(t, seller.User.ID)

	var conv dto.Conversation
	env.doJSON(t, http.MethodPost, "/api/chats", buyer.Token, dto.StartConversationRequest{ListingID: "l1"}, &conv)

	resp := env.doJSON(t, http.MethodGet, "/api/chats/"+conv.ID+"/messages", stranger.Token, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	resp = env.doJSON(t, http.MethodPost, "/api/chats/"+conv.ID+"/messages", stranger.Token, dto.SendMessageRequest{Content: "hi"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("send status = %d, want 403", resp.StatusCode)
	}
}

func TestStartConversationUnknownListing(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.register(t, "buyer@example.com", "Buyer")
	resp := env.doJSON(t, http.MethodPost, "/api/chats", buyer.Token, dto.StartConversationRequest{ListingID: "missing"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "buyer@example.com", "Buyer")
	resp := env.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    "buyer@example.com",
		"name":     "Other",
		"password": "correcthorse",
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doJSON(t, http.MethodGet, "/livez", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("livez = %d", resp.StatusCode)
	}
	resp = env.doJSON(t, http.MethodGet, "/readyz", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz = %d", resp.StatusCode)
	}
}
