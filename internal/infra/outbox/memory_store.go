package outbox

import (
	"context"
	"sync"
	"time"

	appoutbox "bakramandi/internal/app/outbox"
)

// MemoryStore is a claimable in-memory outbox for the memory storage mode
// and for tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs []*EventDocument
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, &EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     record.Payload,
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       stateNew,
		NextAttempt: time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, workerID string) (*EventDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, doc := range s.docs {
		if (doc.State == stateNew || doc.State == stateFailed) && !doc.NextAttempt.After(now) {
			doc.State = stateClaimed
			doc.ClaimedBy = workerID
			doc.ClaimedAt = now
			copyDoc := *doc
			return &copyDoc, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.ID == id {
			doc.State = stateSent
			doc.SentAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.ID == id {
			doc.State = stateFailed
			doc.NextAttempt = next
			doc.LastError = errMsg
			doc.Attempts++
			return nil
		}
	}
	return nil
}

// Pending reports how many events still await delivery.
func (s *MemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, doc := range s.docs {
		if doc.State != stateSent {
			n++
		}
	}
	return n
}

var _ appoutbox.Outbox = (*MemoryStore)(nil)
var _ ClaimStore = (*MemoryStore)(nil)
