package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchmakingExpired(t *testing.T) {
	created := time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)
	room := &Room{
		Matchmaking: true,
		Status:      StatusWaiting,
		CreatedAt:   created,
		Players: map[string]*Participant{
			"u1": {UserID: "u1", Connected: true},
		},
	}

	require.False(t, room.MatchmakingExpired(created.Add(29*time.Second), 30*time.Second))
	require.True(t, room.MatchmakingExpired(created.Add(30*time.Second), 30*time.Second))

	room.Players["u2"] = &Participant{UserID: "u2"}
	require.True(t, room.AwaitingOpponent(), "a disconnected opponent does not count")
	require.True(t, room.MatchmakingExpired(created.Add(time.Minute), 30*time.Second))

	room.Players["u2"].Connected = true
	require.False(t, room.AwaitingOpponent())
	require.False(t, room.MatchmakingExpired(created.Add(time.Minute), 30*time.Second))

	room.Matchmaking = false
	delete(room.Players, "u2")
	require.False(t, room.MatchmakingExpired(created.Add(time.Minute), 30*time.Second))
}

func TestCloneDoesNotShareState(t *testing.T) {
	room := &Room{
		ID:        "r1",
		Questions: []Question{{Prompt: "2+2", Answer: "4"}},
		Players: map[string]*Participant{
			"u1": {UserID: "u1", Answers: map[int]Answer{0: {Value: "4", Correct: true}}},
		},
	}
	c := room.Clone()
	c.Players["u1"].Score = 5
	c.Players["u1"].Answers[1] = Answer{Value: "x"}
	c.Questions[0].Answer = "5"

	require.Zero(t, room.Players["u1"].Score)
	require.Len(t, room.Players["u1"].Answers, 1)
	require.Equal(t, "4", room.Questions[0].Answer)
}

func TestQuestionDeadlinePrefersQuestionLimit(t *testing.T) {
	start := time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)
	room := &Room{
		Status:            StatusPlaying,
		TimeLimit:         20 * time.Second,
		QuestionStartedAt: start,
		Questions:         []Question{{Prompt: "a"}, {Prompt: "b", TimeLimit: 5 * time.Second}},
	}
	require.Equal(t, start.Add(20*time.Second), room.QuestionDeadline())

	room.CurrentQuestion = 1
	require.Equal(t, start.Add(5*time.Second), room.QuestionDeadline())
}

func TestAwardDefaultsToOne(t *testing.T) {
	require.Equal(t, 1, Question{}.Award())
	require.Equal(t, 3, Question{Points: 3}.Award())
}
