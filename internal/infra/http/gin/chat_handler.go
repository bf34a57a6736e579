package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"bakramandi/internal/app/dto"
	chatsvc "bakramandi/internal/app/services/chat"
	domainchat "bakramandi/internal/domain/chat"
	domainlistings "bakramandi/internal/domain/listings"
)

// ChatHandler bridges HTTP with the chat service.
type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

// ListConversations returns the caller's threads, newest activity first.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	views, err := h.Service.ListConversations(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	items := make([]dto.Conversation, 0, len(views))
	for _, view := range views {
		items = append(items, dto.MapConversation(view.Conversation, view.UnreadCount))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// StartConversation gets or creates a buyer/seller thread for a listing.
func (h ChatHandler) StartConversation(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	var req dto.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	if req.ListingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id is required"})
		return
	}
	conv, err := h.Service.StartConversation(c.Request.Context(), p.ID, req.ListingID, req.SellerID)
	if err != nil {
		h.respondChatError(c, err, "start conversation", "listing_id", req.ListingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversation(*conv, 0))
}

// ListMessages returns a conversation's messages, oldest first.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	messages, err := h.Service.ListMessages(c.Request.Context(), conversationID, p.ID)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.MapMessages(messages)})
}

// SendMessage durably appends a message to a conversation.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Service.SendMessage(c.Request.Context(), conversationID, p.ID, req.Content)
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapMessage(*msg))
}

// MarkRead moves the caller's read marker to now.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	readAt, err := h.Service.MarkRead(c.Request.Context(), conversationID, p.ID)
	if err != nil {
		h.respondChatError(c, err, "mark read", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read_at": readAt})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound), errors.Is(err, domainlistings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, domainchat.ErrContentRequired),
		errors.Is(err, domainchat.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat operation failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
