package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	authsvc "bakramandi/internal/app/services/auth"
	"bakramandi/internal/infra/ws"
)

// SocketHandler authenticates and upgrades websocket connections.
// Browsers cannot set headers on a websocket handshake, so the bearer token
// travels in the token query parameter instead.
type SocketHandler struct {
	Hub    *ws.Hub
	Auth   *authsvc.Service
	Logger *slog.Logger
}

func (h SocketHandler) Connect(c *gin.Context) {
	if h.Hub == nil || h.Auth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = extractBearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	resolved, err := h.Auth.ResolveToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err := h.Hub.Join(c.Writer, c.Request, string(resolved.User.ID)); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "user_id", resolved.User.ID, "error", err)
		}
	}
}

var _ SocketHTTP = (*SocketHandler)(nil)
