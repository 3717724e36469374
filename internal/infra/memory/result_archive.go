package memory

import (
	"context"
	"sync"

	"battle-room-service/internal/domain"
)

// ResultArchive keeps final standings in memory when no database is configured.
type ResultArchive struct {
	mu      sync.RWMutex
	results map[string][]domain.ResultEntry
	writes  map[string]int
}

func NewResultArchive() *ResultArchive {
	return &ResultArchive{
		results: make(map[string][]domain.ResultEntry),
		writes:  make(map[string]int),
	}
}

func (a *ResultArchive) RecordResults(_ context.Context, room *domain.Room) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[room.ID] = append([]domain.ResultEntry(nil), room.Results...)
	a.writes[room.ID]++
	return nil
}

// Results returns the standings recorded for a room.
func (a *ResultArchive) Results(roomID string) ([]domain.ResultEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, ok := a.results[roomID]
	return entries, ok
}

// Count reports how many times a room's standings were recorded.
func (a *ResultArchive) Count(roomID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writes[roomID]
}
