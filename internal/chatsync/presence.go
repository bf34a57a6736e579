package chatsync

import "sync"

// Presence tracks which users are connected right now. The set always
// mirrors the latest snapshot and nothing else.
type Presence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

// Apply wholesale-replaces the online set with the snapshot.
func (p *Presence) Apply(userIDs []string) {
	next := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			next[id] = struct{}{}
		}
	}
	p.mu.Lock()
	p.online = next
	p.mu.Unlock()
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// OnlineCount reports the size of the current snapshot.
func (p *Presence) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.online)
}
