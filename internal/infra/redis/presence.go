package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence records live connections as expiring keys so every instance sees the
// same view: presence:{roomID}:{userID}. Register doubles as the heartbeat.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func (p *Presence) Register(ctx context.Context, roomID, userID string) error {
	return p.client.Set(ctx, presenceKey(roomID, userID), 1, p.ttl).Err()
}

func (p *Presence) Release(ctx context.Context, roomID, userID string) error {
	return p.client.Del(ctx, presenceKey(roomID, userID)).Err()
}

func (p *Presence) Online(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(roomID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func presenceKey(roomID, userID string) string {
	return "presence:" + roomID + ":" + userID
}
