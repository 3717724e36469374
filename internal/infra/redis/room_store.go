package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RoomStore keeps each room as one JSON value and updates it with optimistic
// WATCH/MULTI transactions. Every commit publishes the new snapshot on the room's
// channel inside the same transaction.
//
//	room:{id}            JSON room, expires per app.Retention
//	room:code:{CODE}     room id
//	rooms:matchmaking    set of waiting matchmaking room ids
//	room:{id}:updates    pub/sub channel; empty payload means the room was removed
type RoomStore struct {
	client     *redis.Client
	retention  app.Retention
	maxRetries int
	logger     *zap.Logger
}

const (
	matchmakingKey = "rooms:matchmaking"
	tombstone      = ""
	defaultRetries = 16
)

func NewRoomStore(client *redis.Client, retention app.Retention, logger *zap.Logger) *RoomStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomStore{
		client:     client,
		retention:  retention,
		maxRetries: defaultRetries,
		logger:     logger,
	}
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	ck := codeKey(room.Code)
	ttl := s.retention.TTL(room)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, ck).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrCodeTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(room.ID), data, ttl)
			pipe.Set(ctx, ck, room.ID, ttl)
			if room.Matchmaking {
				pipe.SAdd(ctx, matchmakingKey, room.ID)
			}
			return nil
		})
		return err
	}, ck)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone claimed the same code between our check and commit.
		return domain.ErrCodeTaken
	}
	return err
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	raw, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return decodeRoom(raw)
}

func (s *RoomStore) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve join code: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RoomStore) Update(ctx context.Context, roomID string, mutate app.Mutation) (*domain.Room, app.Action, error) {
	key := roomKey(roomID)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var result *domain.Room
		var action app.Action

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			stored, err := decodeRoom(raw)
			if err != nil {
				return err
			}
			working := stored.Clone()
			action, err = mutate(working)
			if err != nil {
				return err
			}

			switch action {
			case app.Save:
				working.Version = stored.Version + 1
				data, err := json.Marshal(working)
				if err != nil {
					return fmt.Errorf("encode room: %w", err)
				}
				ttl := s.retention.TTL(working)
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, data, ttl)
					if ttl > 0 {
						pipe.Expire(ctx, codeKey(working.Code), ttl)
					}
					if !working.Matchmaking || working.Status != domain.StatusWaiting {
						pipe.SRem(ctx, matchmakingKey, roomID)
					}
					pipe.Publish(ctx, updatesChannel(roomID), data)
					return nil
				})
				result = working
				return err
			case app.Remove:
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key, codeKey(stored.Code))
					pipe.SRem(ctx, matchmakingKey, roomID)
					pipe.Publish(ctx, updatesChannel(roomID), tombstone)
					return nil
				})
				result = working
				return err
			default:
				result = stored
				return nil
			}
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("room update conflict, retrying", zap.String("roomId", roomID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, app.Skip, err
		}
		return result, action, nil
	}
	s.logger.Warn("room update gave up", zap.String("roomId", roomID), zap.Int("attempts", s.maxRetries))
	return nil, app.Skip, domain.ErrStoreContention
}

func (s *RoomStore) ListMatchmaking(ctx context.Context) ([]*domain.Room, error) {
	ids, err := s.client.SMembers(ctx, matchmakingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list matchmaking rooms: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load matchmaking rooms: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		room, err := decodeRoom([]byte(raw))
		if err != nil {
			s.logger.Warn("skip undecodable room", zap.String("roomId", ids[i]), zap.Error(err))
			continue
		}
		if room.Matchmaking && room.Status == domain.StatusWaiting {
			rooms = append(rooms, room)
		}
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, matchmakingKey, stale...).Err(); err != nil {
			s.logger.Warn("prune matchmaking index", zap.Int("stale", len(stale)), zap.Error(err))
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms, nil
}

func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan *domain.Room, func(), error) {
	pubsub := s.client.Subscribe(ctx, updatesChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe room: %w", err)
	}
	// Read after subscribing so no commit can fall between snapshot and stream.
	current, err := s.Get(ctx, roomID)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan *domain.Room, 8)
	out <- current
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		last := current.Version
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == tombstone {
					cancel()
					return
				}
				room, err := decodeRoom([]byte(msg.Payload))
				if err != nil {
					s.logger.Warn("skip undecodable snapshot", zap.String("roomId", roomID), zap.Error(err))
					continue
				}
				if room.Version <= last {
					continue
				}
				last = room.Version
				deliver(out, room)
			}
		}
	}()
	return out, cancel, nil
}

// Sweep prunes matchmaking entries whose rooms already expired; Redis TTLs do the rest.
func (s *RoomStore) Sweep(ctx context.Context, _ time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, matchmakingKey).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, roomKey(id)).Result()
		if err != nil {
			return n, err
		}
		if exists == 0 {
			if err := s.client.SRem(ctx, matchmakingKey, id).Err(); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// deliver never blocks: a full buffer loses its oldest snapshot.
func deliver(out chan *domain.Room, room *domain.Room) {
	select {
	case out <- room:
	default:
		select {
		case <-out:
		default:
		}
		out <- room
	}
}

func decodeRoom(raw []byte) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if room.Players == nil {
		room.Players = map[string]*domain.Participant{}
	}
	for _, p := range room.Players {
		if p.Answers == nil {
			p.Answers = map[int]domain.Answer{}
		}
	}
	return &room, nil
}

func roomKey(id string) string {
	return "room:" + id
}

func codeKey(code string) string {
	return "room:code:" + code
}

func updatesChannel(id string) string {
	return "room:" + id + ":updates"
}
