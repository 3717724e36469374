package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"battle-room-service/internal/infra/memory"
)

type heldScheduler struct{}

func (heldScheduler) AfterFunc(time.Duration, func()) {}

func newRedisService(t *testing.T) *app.RoomService {
	t.Helper()
	_, client := newMiniredis(t)
	store := NewRoomStore(client, app.Retention{}, nil)
	store.maxRetries = 1000
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"": sampleQuestions(),
	}), time.Minute)
	return app.NewRoomService(store, NewPresence(client, time.Minute), questions, app.WithScheduler(heldScheduler{}))
}

func TestRedisBackedJoinsNeverExceedCapacity(t *testing.T) {
	svc := newRedisService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, app.CreateRoomInput{Name: "Race", MaxPlayers: 3}, domain.Player{UserID: "host", DisplayName: "Host"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.JoinRoom(ctx, room.Code, domain.Player{UserID: fmt.Sprintf("p%d", i), DisplayName: "P"})
			if err != nil && !errors.Is(err, domain.ErrRoomFull) {
				t.Errorf("join: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	got, err := svc.Room(ctx, room.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if joined != 2 || len(got.Players) != 3 {
		t.Fatalf("expected 2 joins and 3 seats, got joins=%d seats=%d", joined, len(got.Players))
	}
}

func TestRedisBackedDuplicateSubmitsScoreOnce(t *testing.T) {
	svc := newRedisService(t)
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, app.CreateRoomInput{Name: "Race", MaxPlayers: 2}, domain.Player{UserID: "u1", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.JoinRoom(ctx, room.Code, domain.Player{UserID: "u2", DisplayName: "Bob"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		if _, err := svc.ToggleReady(ctx, room.ID, id); err != nil {
			t.Fatalf("ready: %v", err)
		}
	}
	started, err := svc.StartBattle(ctx, room.ID, "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answer := started.Questions[0].Answer

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.SubmitAnswer(ctx, room.ID, 0, "u1", answer)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if res.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := svc.Room(ctx, room.ID)
	if accepted != 1 || got.Players["u1"].Score != started.Questions[0].Award() {
		t.Fatalf("expected a single scored answer, accepted=%d score=%d", accepted, got.Players["u1"].Score)
	}
}
