package app

import (
	"sort"
	"strings"
	"time"

	"battle-room-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// transition records what a committed mutation did to the battle flow, so timers
// and archiving run once, after the write, and only for the writer that caused it.
type transition struct {
	started  bool
	advanced bool
	finished bool
	resumed  bool
}

// advance moves the shared pointer once every connected participant has answered
// the current question. It must run inside the same mutation that read the pointer.
// Nothing moves while no participant is connected.
func advance(r *domain.Room, now time.Time) (advanced, finished bool) {
	if r.Status != domain.StatusPlaying {
		return false, false
	}
	index := r.CurrentQuestion
	connected := 0
	for _, p := range r.Players {
		if !p.Connected {
			continue
		}
		connected++
		if !p.HasAnswered(index) {
			return false, false
		}
	}
	if connected == 0 {
		return false, false
	}
	if index+1 < len(r.Questions) {
		r.CurrentQuestion = index + 1
		r.QuestionStartedAt = now
		return true, false
	}
	r.Status = domain.StatusFinished
	r.FinishedAt = now
	r.Results = rankResults(r)
	return false, true
}

// rankResults orders participants by score, then by who finished answering first.
func rankResults(r *domain.Room) []domain.ResultEntry {
	entries := make([]domain.ResultEntry, 0, len(r.Players))
	for _, p := range r.Players {
		correct := 0
		for _, a := range p.Answers {
			if a.Correct {
				correct++
			}
		}
		entries = append(entries, domain.ResultEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Correct:     correct,
			CompletedAt: p.CompletedAt(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			// a participant with no answers at all ranks after everyone who answered
			if a.CompletedAt.IsZero() || b.CompletedAt.IsZero() {
				return !a.CompletedAt.IsZero()
			}
			return a.CompletedAt.Before(b.CompletedAt)
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.UserID < b.UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// normalizeAnswer makes "  Forty Two " and "forty two" compare equal.
func normalizeAnswer(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// AnswersMatch compares a submitted value with a canonical answer.
func AnswersMatch(submitted, canonical string) bool {
	if submitted == domain.NoAnswer {
		return false
	}
	return normalizeAnswer(submitted) == normalizeAnswer(canonical)
}

// settle runs the side effects of a committed transition.
func (s *RoomService) settle(room *domain.Room, t transition) {
	switch {
	case t.finished:
		s.logger.Info("battle finished", zap.String("roomId", room.ID), zap.Int("questions", len(room.Questions)))
		s.recordResults(room)
	case t.started, t.advanced, t.resumed:
		s.logger.Debug("question opened", zap.String("roomId", room.ID), zap.Int("index", room.CurrentQuestion))
		s.armDeadline(room)
	}
}

// armDeadline schedules the timeout submission for the room's current question.
func (s *RoomService) armDeadline(room *domain.Room) {
	if room == nil || room.Status != domain.StatusPlaying {
		return
	}
	roomID, index := room.ID, room.CurrentQuestion
	wait := room.QuestionDeadline().Sub(s.now())
	if wait < 0 {
		wait = 0
	}
	s.scheduler.AfterFunc(wait, func() {
		ctx, cancel := s.timerContext()
		defer cancel()
		if err := s.ExpireQuestion(ctx, roomID, index); err != nil {
			s.logger.Warn("expire question", zap.String("roomId", roomID), zap.Int("index", index), zap.Error(err))
		}
	})
}

func (s *RoomService) recordResults(room *domain.Room) {
	if s.results == nil {
		return
	}
	ctx, cancel := s.timerContext()
	defer cancel()
	if err := s.results.RecordResults(ctx, room); err != nil {
		s.logger.Error("record results", zap.String("roomId", room.ID), zap.Error(err))
	}
}
