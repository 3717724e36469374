package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. A single mutex
// serialises every update, and snapshots are published while it is held, so
// subscribers see commits in order.
type RoomStore struct {
	mu        sync.Mutex
	rooms     map[string]*roomEntry
	codes     map[string]string
	retention app.Retention
}

type roomEntry struct {
	room        *domain.Room
	subscribers map[chan *domain.Room]struct{}
}

func NewRoomStore(retention app.Retention) *RoomStore {
	return &RoomStore{
		rooms:     make(map[string]*roomEntry),
		codes:     make(map[string]string),
		retention: retention,
	}
}

func (s *RoomStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[room.Code]; ok {
		return domain.ErrCodeTaken
	}
	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	s.rooms[room.ID] = &roomEntry{
		room:        room.Clone(),
		subscribers: make(map[chan *domain.Room]struct{}),
	}
	s.codes[room.Code] = room.ID
	return nil
}

func (s *RoomStore) Get(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return entry.room.Clone(), nil
}

func (s *RoomStore) GetByCode(_ context.Context, code string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	entry, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return entry.room.Clone(), nil
}

func (s *RoomStore) Update(_ context.Context, roomID string, mutate app.Mutation) (*domain.Room, app.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[roomID]
	if !ok {
		return nil, app.Skip, domain.ErrRoomNotFound
	}
	working := entry.room.Clone()
	action, err := mutate(working)
	if err != nil {
		return nil, app.Skip, err
	}

	switch action {
	case app.Save:
		working.Version = entry.room.Version + 1
		entry.room = working
		s.broadcastLocked(entry)
		return working.Clone(), app.Save, nil
	case app.Remove:
		s.removeLocked(roomID)
		return working, app.Remove, nil
	default:
		return entry.room.Clone(), app.Skip, nil
	}
}

func (s *RoomStore) ListMatchmaking(_ context.Context) ([]*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Room
	for _, entry := range s.rooms {
		if entry.room.Matchmaking && entry.room.Status == domain.StatusWaiting {
			out = append(out, entry.room.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RoomStore) Subscribe(_ context.Context, roomID string) (<-chan *domain.Room, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}

	ch := make(chan *domain.Room, 8)
	entry.subscribers[ch] = struct{}{}
	ch <- entry.room.Clone()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := entry.subscribers[ch]; ok {
			delete(entry.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (s *RoomStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, entry := range s.rooms {
		if s.retention.Expired(entry.room, now) {
			s.removeLocked(id)
			n++
		}
	}
	return n, nil
}

// Len reports how many rooms are stored.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *RoomStore) removeLocked(roomID string) {
	entry, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for ch := range entry.subscribers {
		delete(entry.subscribers, ch)
		close(ch)
	}
	if s.codes[entry.room.Code] == roomID {
		delete(s.codes, entry.room.Code)
	}
	delete(s.rooms, roomID)
}

func (s *RoomStore) broadcastLocked(entry *roomEntry) {
	for ch := range entry.subscribers {
		snap := entry.room.Clone()
		select {
		case ch <- snap:
		default:
			// Full buffer: drop the oldest queued snapshot so the newest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
