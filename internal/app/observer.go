package app

import (
	"context"
	"sync"

	"battle-room-service/internal/domain"
)

// Subscription streams room snapshots in commit order. A slow reader may miss
// intermediate snapshots but never receives an older one after a newer one.
type Subscription struct {
	RoomID  string
	updates <-chan *domain.Room
	cancel  func()
	once    sync.Once
}

// Updates is closed when the room is deleted or the subscription is closed.
func (s *Subscription) Updates() <-chan *domain.Room {
	return s.updates
}

// Close stops delivery. It is safe to call any number of times.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Subscribe returns a subscription whose first snapshot is the room as it is now.
func (s *RoomService) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	ch, cancel, err := s.store.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &Subscription{RoomID: roomID, updates: ch, cancel: cancel}, nil
}
