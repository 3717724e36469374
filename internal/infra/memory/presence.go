package memory

import (
	"context"
	"sync"
	"time"
)

// Presence is an in-process app.PresenceTracker. A record lapses ttl after its
// last Register; a zero ttl keeps records until Release.
type Presence struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewPresence(ttl time.Duration) *Presence {
	return NewPresenceWithClock(ttl, time.Now)
}

// NewPresenceWithClock is test-only for deterministic expiry.
func NewPresenceWithClock(ttl time.Duration, now func() time.Time) *Presence {
	return &Presence{ttl: ttl, now: now, seen: make(map[string]time.Time)}
}

func (p *Presence) Register(_ context.Context, roomID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[presenceKey(roomID, userID)] = p.now()
	return nil
}

func (p *Presence) Release(_ context.Context, roomID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, presenceKey(roomID, userID))
	return nil
}

func (p *Presence) Online(_ context.Context, roomID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.seen[presenceKey(roomID, userID)]
	if !ok {
		return false, nil
	}
	if p.ttl > 0 && p.now().Sub(at) >= p.ttl {
		return false, nil
	}
	return true, nil
}

func presenceKey(roomID, userID string) string {
	return roomID + "/" + userID
}
