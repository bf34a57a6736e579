package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"bakramandi/internal/infra/config"
	"bakramandi/internal/infra/obs"
)

type ChatHTTP interface {
	ListConversations(c *gin.Context)
	StartConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

type SocketHTTP interface {
	Connect(c *gin.Context)
}

type Handlers struct {
	Auth           AuthHTTP
	Chat           ChatHTTP
	Socket         SocketHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins(cfg),
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Chat != nil {
		api.GET("/chats", h.Chat.ListConversations)
		api.POST("/chats", h.Chat.StartConversation)
		api.GET("/chats/:id/messages", h.Chat.ListMessages)
		api.POST("/chats/:id/messages", h.Chat.SendMessage)
		api.POST("/chats/:id/read", h.Chat.MarkRead)
	}
	if h.Socket != nil {
		router.GET("/ws", h.Socket.Connect)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func allowedOrigins(cfg config.Config) []string {
	if len(cfg.WSAllowedOrigins) > 0 {
		return cfg.WSAllowedOrigins
	}
	return []string{"*"}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
