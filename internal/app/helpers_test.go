package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"battle-room-service/internal/infra/memory"
	"github.com/stretchr/testify/require"
)

const autoStartDelay = 1500 * time.Millisecond

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pendingTimer struct {
	after time.Duration
	fn    func()
}

// fakeScheduler holds timers until a test fires them.
type fakeScheduler struct {
	mu      sync.Mutex
	pending []pendingTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingTimer{after: d, fn: f})
}

// Fire runs every pending timer accepted by match and returns how many ran.
// Timers scheduled while firing stay pending.
func (s *fakeScheduler) Fire(match func(time.Duration) bool) int {
	s.mu.Lock()
	var run, keep []pendingTimer
	for _, p := range s.pending {
		if match(p.after) {
			run = append(run, p)
		} else {
			keep = append(keep, p)
		}
	}
	s.pending = keep
	s.mu.Unlock()
	for _, p := range run {
		p.fn()
	}
	return len(run)
}

func (s *fakeScheduler) Count(match func(time.Duration) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pending {
		if match(p.after) {
			n++
		}
	}
	return n
}

func isAutoStart(d time.Duration) bool { return d == autoStartDelay }
func isDeadline(d time.Duration) bool  { return d != autoStartDelay }

type env struct {
	svc      *app.RoomService
	store    *memory.RoomStore
	sched    *fakeScheduler
	clock    *clock
	archive  *memory.ResultArchive
	presence *memory.Presence
}

func newEnv(t *testing.T, opts ...app.Option) *env {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewRoomStore(app.Retention{Finished: time.Minute, Idle: time.Hour})
	presence := memory.NewPresenceWithClock(time.Minute, clk.Now)
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"": {
			{Prompt: "What is 2 + 2?", Answer: "4", Points: 1},
			{Prompt: "Capital of France?", Answer: "Paris", Points: 2},
			{Prompt: "Answer to everything?", Answer: "42", Points: 3},
		},
	}), time.Minute)
	archive := memory.NewResultArchive()
	sched := &fakeScheduler{}

	settings := app.DefaultSettings()
	settings.QuestionCount = 3
	settings.AutoStartDelay = autoStartDelay
	base := []app.Option{
		app.WithScheduler(sched),
		app.WithClock(clk.Now),
		app.WithResultRecorder(archive),
		app.WithSettings(settings),
	}
	svc := app.NewRoomService(store, presence, questions, append(base, opts...)...)
	return &env{svc: svc, store: store, sched: sched, clock: clk, archive: archive, presence: presence}
}

func player(id string) domain.Player {
	return domain.Player{UserID: id, DisplayName: "Player " + id}
}

// seat creates a room hosted by the first id and joins the rest, one second apart.
func (e *env) seat(t *testing.T, maxPlayers int, ids ...string) *domain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := e.svc.CreateRoom(ctx, app.CreateRoomInput{Name: "Battle", MaxPlayers: maxPlayers}, player(ids[0]))
	require.NoError(t, err)
	for _, id := range ids[1:] {
		e.clock.Advance(time.Second)
		room, err = e.svc.JoinRoom(ctx, room.Code, player(id))
		require.NoError(t, err)
	}
	return room
}

// start seats the players, readies them all and starts the battle as host.
func (e *env) start(t *testing.T, maxPlayers int, ids ...string) *domain.Room {
	t.Helper()
	ctx := context.Background()
	room := e.seat(t, maxPlayers, ids...)
	for _, id := range ids {
		_, err := e.svc.ToggleReady(ctx, room.ID, id)
		require.NoError(t, err)
	}
	room, err := e.svc.StartBattle(ctx, room.ID, ids[0])
	require.NoError(t, err)
	return room
}

func (e *env) room(t *testing.T, roomID string) *domain.Room {
	t.Helper()
	room, err := e.svc.Room(context.Background(), roomID)
	require.NoError(t, err)
	return room
}

func (e *env) correctAnswer(t *testing.T, roomID string, index int) string {
	t.Helper()
	return e.room(t, roomID).Questions[index].Answer
}
