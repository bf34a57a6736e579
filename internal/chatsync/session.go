package chatsync

import (
	"context"
	"log/slog"
)

// Connect builds the whole client stack for one logged-in session: REST
// client, presence tracker, store, and the socket transport wired to it.
// A failed dial degrades to durable-only mode instead of failing the
// session; the error is logged, not surfaced.
func Connect(ctx context.Context, baseURL, token, userID string, logger *slog.Logger) (*Store, error) {
	api := &APIClient{BaseURL: baseURL, Token: token}
	store := NewStore(api, NewPresence(), userID, logger)

	transport, err := Dial(ctx, baseURL, token, store, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("realtime dial failed, continuing without socket", "error", err)
		}
	} else {
		store.AttachTransport(transport)
	}

	if err := store.ListConversations(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
