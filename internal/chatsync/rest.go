package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bakramandi/internal/app/dto"
)

var (
	ErrUnauthorized = errors.New("chatsync: unauthorized")
	ErrNotFound     = errors.New("chatsync: not found")
)

// APIClient is the durable half of the sync layer: every state transition
// that must survive a reconnect goes through these calls.
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

type conversationList struct {
	Items []dto.Conversation `json:"items"`
}

type messageList struct {
	Items []dto.Message `json:"items"`
}

func (c *APIClient) ListConversations(ctx context.Context) ([]dto.Conversation, error) {
	var out conversationList
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *APIClient) ListMessages(ctx context.Context, conversationID string) ([]dto.Message, error) {
	var out messageList
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+conversationID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *APIClient) SendMessage(ctx context.Context, conversationID, content string) (dto.Message, error) {
	var out dto.Message
	body := dto.SendMessageRequest{Content: content}
	if err := c.do(ctx, http.MethodPost, "/api/chats/"+conversationID+"/messages", body, &out); err != nil {
		return dto.Message{}, err
	}
	return out, nil
}

func (c *APIClient) StartConversation(ctx context.Context, listingID, sellerID string) (dto.Conversation, error) {
	var out dto.Conversation
	body := dto.StartConversationRequest{ListingID: listingID, SellerID: sellerID}
	if err := c.do(ctx, http.MethodPost, "/api/chats", body, &out); err != nil {
		return dto.Conversation{}, err
	}
	return out, nil
}

func (c *APIClient) MarkRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/chats/"+conversationID+"/read", struct{}{}, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("chatsync: %s %s returned %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}
