package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRoomStoreLifecycle(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	store := NewRoomStore(client, app.Retention{}, nil)

	if err := store.Create(ctx, sampleRoom("room-1", "ABCDEF", true)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sampleRoom("room-2", "ABCDEF", false)); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}
	got, err := store.GetByCode(ctx, "ABCDEF")
	if err != nil || got.ID != "room-1" {
		t.Fatalf("get by code: %v %+v", err, got)
	}
	if got.Players["u1"].Answers == nil {
		t.Fatalf("expected decoded answers map")
	}

	updated, action, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		r.Name = "Renamed"
		return app.Save, nil
	})
	if err != nil || action != app.Save || updated.Version != 2 {
		t.Fatalf("save: %v %v %+v", action, err, updated)
	}

	_, action, err = store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		return app.Remove, nil
	})
	if err != nil || action != app.Remove {
		t.Fatalf("remove: %v %v", action, err)
	}
	for _, key := range []string{"room:room-1", "room:code:ABCDEF"} {
		if mr.Exists(key) {
			t.Fatalf("expected %s removed", key)
		}
	}
	if ok, _ := mr.SIsMember(matchmakingKey, "room-1"); ok {
		t.Fatalf("expected matchmaking index cleared")
	}
	if _, _, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		return app.Save, nil
	}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoomStoreSkipAndErrorLeaveRoomUntouched(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()
	store := NewRoomStore(client, app.Retention{}, nil)
	if err := store.Create(ctx, sampleRoom("room-1", "ABCDEF", false)); err != nil {
		t.Fatalf("create: %v", err)
	}

	wantErr := errors.New("boom")
	if _, _, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		r.Name = "changed"
		return app.Save, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	skipped, action, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		r.Name = "skipped"
		return app.Skip, nil
	})
	if err != nil || action != app.Skip || skipped.Name != "Room" {
		t.Fatalf("skip should return stored room: %v %+v", err, skipped)
	}

	got, _ := store.Get(ctx, "room-1")
	if got.Name != "Room" || got.Version != 1 {
		t.Fatalf("expected untouched room, got name=%q version=%d", got.Name, got.Version)
	}
}

func TestRoomStoreConcurrentUpdatesNeverLoseWrites(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()
	store := NewRoomStore(client, app.Retention{}, nil)
	store.maxRetries = 1000
	if err := store.Create(ctx, sampleRoom("room-1", "ABCDEF", false)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
				r.CurrentQuestion++
				return app.Save, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	got, _ := store.Get(ctx, "room-1")
	if got.CurrentQuestion != writers || got.Version != writers+1 {
		t.Fatalf("expected %d serialized increments, got pointer=%d version=%d", writers, got.CurrentQuestion, got.Version)
	}
}

func TestRoomStoreSubscribeStreamsCommitsInOrder(t *testing.T) {
	_, client := newMiniredis(t)
	ctx := context.Background()
	store := NewRoomStore(client, app.Retention{}, nil)
	if err := store.Create(ctx, sampleRoom("room-1", "ABCDEF", false)); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := store.Subscribe(ctx, "room-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if first := receive(t, ch); first.Version != 1 {
		t.Fatalf("expected current snapshot first, got version %d", first.Version)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
			return app.Save, nil
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	for want := int64(2); want <= 4; want++ {
		if got := receive(t, ch); got.Version != want {
			t.Fatalf("expected version %d, got %d", want, got.Version)
		}
	}

	if _, _, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		return app.Remove, nil
	}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel closed after removal")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for close")
	}
}

func TestRoomStoreRetentionUsesKeyTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	store := NewRoomStore(client, app.Retention{Finished: time.Minute, Idle: time.Hour}, nil)
	if err := store.Create(ctx, sampleRoom("room-1", "ABCDEF", false)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("room:room-1"); ttl != time.Hour {
		t.Fatalf("expected idle ttl, got %v", ttl)
	}

	if _, _, err := store.Update(ctx, "room-1", func(r *domain.Room) (app.Action, error) {
		r.Status = domain.StatusFinished
		return app.Save, nil
	}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if ttl := mr.TTL("room:room-1"); ttl != time.Minute {
		t.Fatalf("expected finished ttl, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "room-1"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room expired, got %v", err)
	}
	if _, err := store.GetByCode(ctx, "ABCDEF"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected code expired, got %v", err)
	}
}

func TestRoomStoreListMatchmaking(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	store := NewRoomStore(client, app.Retention{}, nil)

	older := sampleRoom("older", "AAAAAA", true)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := sampleRoom("newer", "BBBBBB", true)
	started := sampleRoom("started", "CCCCCC", true)
	for _, r := range []*domain.Room{newer, older, started} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, _, err := store.Update(ctx, "started", func(r *domain.Room) (app.Action, error) {
		r.Status = domain.StatusPlaying
		return app.Save, nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	mr.SAdd(matchmakingKey, "ghost")

	rooms, err := store.ListMatchmaking(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "older" || rooms[1].ID != "newer" {
		t.Fatalf("unexpected candidates: %+v", rooms)
	}
	if ok, _ := mr.SIsMember(matchmakingKey, "ghost"); ok {
		t.Fatalf("expected stale id pruned")
	}
}

func TestRoomStoreListMatchmakingLogsFailedPrune(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	store := NewRoomStore(client, app.Retention{}, zap.New(core))

	if err := store.Create(ctx, sampleRoom("waiting", "AAAAAA", true)); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.SAdd(matchmakingKey, "ghost")
	client.AddHook(refuseSRem{})

	rooms, err := store.ListMatchmaking(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "waiting" {
		t.Fatalf("unexpected candidates: %+v", rooms)
	}
	if n := logs.FilterMessage("prune matchmaking index").Len(); n != 1 {
		t.Fatalf("expected one prune warning, got %d", n)
	}
}

// refuseSRem fails every SREM sent outside a pipeline.
type refuseSRem struct{}

func (refuseSRem) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (refuseSRem) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "srem" {
			cmd.SetErr(errors.New("srem refused"))
			return cmd.Err()
		}
		return next(ctx, cmd)
	}
}

func (refuseSRem) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func receive(t *testing.T, ch <-chan *domain.Room) *domain.Room {
	t.Helper()
	select {
	case room, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed early")
		}
		return room
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return nil
}

func sampleRoom(id, code string, matchmaking bool) *domain.Room {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Room{
		ID:           id,
		Code:         code,
		Name:         "Room",
		MaxPlayers:   2,
		Status:       domain.StatusWaiting,
		Matchmaking:  matchmaking,
		HostID:       "u1",
		CreatedAt:    now,
		LastActivity: now,
		Version:      1,
		Players: map[string]*domain.Participant{
			"u1": {UserID: "u1", DisplayName: "Alice", IsHost: true, Connected: true, JoinedAt: now, Answers: map[int]domain.Answer{}},
		},
	}
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
