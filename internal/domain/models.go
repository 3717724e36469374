package domain

import (
	"sort"
	"time"
)

// Status is the lifecycle state of a room. It only ever moves forward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// NoAnswer is recorded when a participant lets the question clock run out.
const NoAnswer = ""

const (
	MinPlayers    = 2
	MaxPlayers    = 10
	MaxNameLength = 50
)

// Player identifies a caller. Identity issuance happens outside this service.
type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Question is immutable once attached to a battle.
type Question struct {
	Prompt      string        `json:"prompt"`
	Answer      string        `json:"answer"`
	TimeLimit   time.Duration `json:"timeLimit"`
	Explanation string        `json:"explanation,omitempty"`
	Points      int           `json:"points"` // defaults to 1 if zero
}

// Award returns the score granted for a correct answer.
func (q Question) Award() int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// Answer is written once per (participant, question index).
type Answer struct {
	Value       string    `json:"value"`
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Participant is a player seated in a room.
type Participant struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Ready       bool           `json:"ready"`
	Connected   bool           `json:"connected"`
	IsHost      bool           `json:"isHost"`
	Score       int            `json:"score"`
	JoinedAt    time.Time      `json:"joinedAt"`
	Answers     map[int]Answer `json:"answers"`
}

// HasAnswered reports whether an answer is recorded for the question index.
func (p *Participant) HasAnswered(index int) bool {
	_, ok := p.Answers[index]
	return ok
}

// CompletedAt is the time of the participant's latest recorded answer.
func (p *Participant) CompletedAt() time.Time {
	var last time.Time
	for _, a := range p.Answers {
		if a.SubmittedAt.After(last) {
			last = a.SubmittedAt
		}
	}
	return last
}

// ResultEntry is one line of the final standings.
type ResultEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Correct     int       `json:"correct"`
	CompletedAt time.Time `json:"completedAt"`
}

// Room is the aggregate every battle operation reads and mutates as a unit.
type Room struct {
	ID                string                  `json:"id"`
	Code              string                  `json:"code"`
	Name              string                  `json:"name"`
	MaxPlayers        int                     `json:"maxPlayers"`
	Status            Status                  `json:"status"`
	Matchmaking       bool                    `json:"matchmaking"`
	Scope             string                  `json:"scope,omitempty"`
	HostID            string                  `json:"hostId"`
	Questions         []Question              `json:"questions,omitempty"`
	CurrentQuestion   int                     `json:"currentQuestion"`
	TimeLimit         time.Duration           `json:"timeLimit"`
	QuestionStartedAt time.Time               `json:"questionStartedAt"`
	Players           map[string]*Participant `json:"players"`
	Results           []ResultEntry           `json:"results,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`
	LastActivity      time.Time               `json:"lastActivity"`
	StartedAt         time.Time               `json:"startedAt"`
	FinishedAt        time.Time               `json:"finishedAt"`
	Version           int64                   `json:"version"`
}

// ConnectedCount returns the number of participants with a live session.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Full reports whether no seat is left.
func (r *Room) Full() bool {
	return len(r.Players) >= r.MaxPlayers
}

// Current returns the question under the shared pointer.
func (r *Room) Current() (Question, bool) {
	if r.Status != StatusPlaying || r.CurrentQuestion < 0 || r.CurrentQuestion >= len(r.Questions) {
		return Question{}, false
	}
	return r.Questions[r.CurrentQuestion], true
}

// QuestionDeadline is when the current question's clock expires.
func (r *Room) QuestionDeadline() time.Time {
	limit := r.TimeLimit
	if q, ok := r.Current(); ok && q.TimeLimit > 0 {
		limit = q.TimeLimit
	}
	return r.QuestionStartedAt.Add(limit)
}

// AwaitingOpponent holds while a matchmaking room waits for a second connected player.
func (r *Room) AwaitingOpponent() bool {
	return r.Matchmaking && r.Status == StatusWaiting && r.ConnectedCount() < MinPlayers
}

// MatchmakingExpired reports whether a lone matchmaking waiter has waited past window.
func (r *Room) MatchmakingExpired(now time.Time, window time.Duration) bool {
	return r.AwaitingOpponent() && now.Sub(r.CreatedAt) >= window
}

// Participants returns the players ordered by join time.
func (r *Room) Participants() []*Participant {
	out := make([]*Participant, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Clone returns a deep copy so snapshots can be handed out without sharing maps.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.Questions != nil {
		c.Questions = append([]Question(nil), r.Questions...)
	}
	if r.Results != nil {
		c.Results = append([]ResultEntry(nil), r.Results...)
	}
	c.Players = make(map[string]*Participant, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		cp.Answers = make(map[int]Answer, len(p.Answers))
		for idx, a := range p.Answers {
			cp.Answers[idx] = a
		}
		c.Players[id] = &cp
	}
	return &c
}
