package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestFindRandomMatchPairsPlayers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	require.True(t, first.IsHost)
	require.True(t, first.Room.Matchmaking)
	require.Equal(t, 2, first.Room.MaxPlayers)
	require.True(t, first.Room.Players["u1"].Ready)

	again, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	require.Equal(t, first.Room.ID, again.Room.ID, "a waiting player keeps their room")

	second, err := e.svc.FindRandomMatch(ctx, player("u2"))
	require.NoError(t, err)
	require.False(t, second.IsHost)
	require.Equal(t, first.Room.ID, second.Room.ID)
	require.Len(t, second.Room.Players, 2)

	third, err := e.svc.FindRandomMatch(ctx, player("u3"))
	require.NoError(t, err)
	require.True(t, third.IsHost)
	require.NotEqual(t, first.Room.ID, third.Room.ID)
}

func TestFindRandomMatchReconnectsWaitingPlayer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	require.NoError(t, e.svc.Disconnect(ctx, first.Room.ID, "u1"))

	again, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	require.Equal(t, first.Room.ID, again.Room.ID)
	require.True(t, again.IsHost)
	require.True(t, again.Room.Players["u1"].Connected)

	_, err = e.svc.FindRandomMatch(ctx, player("u2"))
	require.NoError(t, err)
	require.Equal(t, 1, e.sched.Count(isAutoStart))
	require.Equal(t, 1, e.sched.Fire(isAutoStart))
	require.Equal(t, domain.StatusPlaying, e.room(t, first.Room.ID).Status)
}

func TestMatchmakingAutoStartsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	require.Zero(t, e.sched.Count(isAutoStart), "a lone waiter does not start")
	_, err = e.svc.FindRandomMatch(ctx, player("u2"))
	require.NoError(t, err)
	require.Equal(t, 1, e.sched.Count(isAutoStart))

	// A second trigger for the same pairing.
	_, err = e.svc.ToggleReady(ctx, first.Room.ID, "u1")
	require.NoError(t, err)
	_, err = e.svc.ToggleReady(ctx, first.Room.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, e.sched.Count(isAutoStart))

	before := e.room(t, first.Room.ID).Version
	require.Equal(t, 2, e.sched.Fire(isAutoStart))

	started := e.room(t, first.Room.ID)
	require.Equal(t, domain.StatusPlaying, started.Status)
	require.Equal(t, before+1, started.Version, "only one start is committed")
	require.Equal(t, 1, e.sched.Count(isDeadline))

	fourth, err := e.svc.FindRandomMatch(ctx, player("u3"))
	require.NoError(t, err)
	require.NotEqual(t, first.Room.ID, fourth.Room.ID, "started rooms are not offered")
}

func TestAutoStartSkipsWhenOpponentLeft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	_, err = e.svc.FindRandomMatch(ctx, player("u2"))
	require.NoError(t, err)
	require.NoError(t, e.svc.LeaveRoom(ctx, first.Room.ID, "u2"))

	require.Equal(t, 1, e.sched.Fire(isAutoStart))
	require.Equal(t, domain.StatusWaiting, e.room(t, first.Room.ID).Status)
}

func TestConcurrentMatchmakingNeverOverfillsRooms(t *testing.T) {
	e := newEnv(t)
	const players = 20

	results := make([]app.MatchResult, players)
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.svc.FindRandomMatch(context.Background(), player(fmt.Sprintf("p%02d", i)))
			if err != nil {
				t.Errorf("find match: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	seated := map[string]int{}
	for i, res := range results {
		require.NotNil(t, res.Room)
		room := e.room(t, res.Room.ID)
		require.Contains(t, room.Players, fmt.Sprintf("p%02d", i))
		seated[room.ID] = len(room.Players)
	}
	total := 0
	for _, n := range seated {
		require.LessOrEqual(t, n, 2)
		total += n
	}
	require.Equal(t, players, total, "every player sits in exactly one room")
}

func TestCancelMatchmaking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alone, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	require.NoError(t, e.svc.CancelMatchmaking(ctx, "u1"))
	_, err = e.svc.Room(ctx, alone.Room.ID)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	require.NoError(t, e.svc.CancelMatchmaking(ctx, "u1"), "cancelling twice is a no-op")

	paired, err := e.svc.FindRandomMatch(ctx, player("u1"))
	require.NoError(t, err)
	_, err = e.svc.FindRandomMatch(ctx, player("u2"))
	require.NoError(t, err)
	require.NoError(t, e.svc.CancelMatchmaking(ctx, "u1"))
	require.Len(t, e.room(t, paired.Room.ID).Players, 2, "a matched room is kept")
}
