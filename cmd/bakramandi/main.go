package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	appoutbox "bakramandi/internal/app/outbox"
	authsvc "bakramandi/internal/app/services/auth"
	chatsvc "bakramandi/internal/app/services/chat"
	domainchat "bakramandi/internal/domain/chat"
	"bakramandi/internal/domain/listings"
	kafkabroker "bakramandi/internal/infra/broker/kafka"
	"bakramandi/internal/infra/config"
	mongodb "bakramandi/internal/infra/db/mongo"
	"bakramandi/internal/infra/db/scylla"
	ginserver "bakramandi/internal/infra/http/gin"
	"bakramandi/internal/infra/obs"
	infraoutbox "bakramandi/internal/infra/outbox"
	"bakramandi/internal/infra/security"
	"bakramandi/internal/infra/storage/memory"
	"bakramandi/internal/infra/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg = config.Config{
			Env:       env,
			HTTPAddr:  getenv("HTTP_ADDR", ":8080"),
			ChatStore: config.StoreMemory,
		}
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	fixturesPath := getenv("LISTINGS_FIXTURES", defaultListingFixturesPath())
	if err := app.loadListingFixtures(ctx, fixturesPath, logger); err != nil {
		logger.Warn("listing fixtures load failed", "error", err, "path", fixturesPath)
	}

	go app.hub.Run()
	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.hub.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "chat_store", cfg.ChatStore)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	hub      *ws.Hub
	worker   *infraoutbox.Worker
	listings *memory.ListingRepository
	ready    func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, func(), error) {
	cleanups := make([]func(), 0, 4)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	userRepo := memory.NewUserRepository()
	sessionStore := memory.NewSessionStore()
	listingRepo := memory.NewListingRepository()

	var (
		chatStore  domainchat.Store
		outboxAdd  appoutbox.Outbox
		claimStore infraoutbox.ClaimStore
		ready      = func() error { return nil }
	)

	switch cfg.ChatStore {
	case config.StoreMongo:
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, cleanup, fmt.Errorf("mongo connect: %w", err)
		}
		cleanups = append(cleanups, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		})
		chatStore = mongodb.NewChatStore(client.DB)
		store := infraoutbox.NewMongoStore(client.DB)
		outboxAdd, claimStore = store, store
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
	case config.StoreScylla:
		session, err := scylla.NewSession(scylla.SessionParams{
			Hosts:    cfg.ScyllaHosts,
			Keyspace: cfg.ScyllaKeyspace,
		}, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("scylla connect: %w", err)
		}
		cleanups = append(cleanups, session.Close)
		chatStore = scylla.NewChatStore(session, logger)
		store := infraoutbox.NewMemoryStore()
		outboxAdd, claimStore = store, store
	default:
		chatStore = memory.NewChatStore()
		store := infraoutbox.NewMemoryStore()
		outboxAdd, claimStore = store, store
	}

	authService := &authsvc.Service{
		Users:      userRepo,
		Sessions:   sessionStore,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	chatService := &chatsvc.Service{
		Store:    chatStore,
		Listings: listingRepo,
		Outbox:   outboxAdd,
		Encoder:  appoutbox.JSONEventEncoder{},
		Logger:   logger,
	}

	hub := ws.NewHub(chatService, logger)
	hub.CheckOrigin = originChecker(cfg.WSAllowedOrigins)

	var worker *infraoutbox.Worker
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafkabroker.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, cleanup, fmt.Errorf("kafka connect: %w", err)
		}
		cleanups = append(cleanups, func() { _ = producer.Close() })
		worker = &infraoutbox.Worker{
			Store:       claimStore,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
		}
	}

	app := &application{
		handlers: ginserver.Handlers{
			Auth: ginserver.AuthHandler{Service: authService, Logger: logger},
			Chat: ginserver.ChatHandler{Service: chatService, Logger: logger},
			Socket: ginserver.SocketHandler{
				Hub:    hub,
				Auth:   authService,
				Logger: logger,
			},
			AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
		},
		hub:      hub,
		worker:   worker,
		listings: listingRepo,
		ready:    ready,
	}
	return app, cleanup, nil
}

func (a *application) loadListingFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	now := time.Now()
	for _, fx := range fixtures {
		listing, err := listings.New(listings.ListingID(fx.ID), fx.Title, fx.SellerID, now)
		if err != nil {
			logger.Error("fixture invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		if err := a.listings.Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", fx.ID, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", listing.ID)
	}
	return nil
}

type listingFixture struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SellerID string `json:"seller_id"`
}

// originChecker admits any origin unless an explicit allow list is set.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, origin := range allowed {
		if origin == "*" {
			wildcard = true
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		if wildcard {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func defaultListingFixturesPath() string {
	return filepath.Join("data", "listings.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
