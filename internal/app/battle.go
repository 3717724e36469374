package app

import (
	"context"
	"errors"

	"battle-room-service/internal/domain"
	"go.uber.org/zap"
)

// AnswerResult reports what happened to a submission. A submission that was
// dropped as stale or duplicate is not an error; it comes back with Accepted false.
type AnswerResult struct {
	QuestionIndex int          `json:"questionIndex"`
	Accepted      bool         `json:"accepted"`
	Correct       bool         `json:"correct"`
	Awarded       int          `json:"awarded"`
	TotalScore    int          `json:"totalScore"`
	Room          *domain.Room `json:"-"`
}

// StartBattle is the host-initiated start. Every connected participant must be ready.
func (s *RoomService) StartBattle(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	return s.beginBattle(ctx, roomID, userID, false)
}

func (s *RoomService) beginBattle(ctx context.Context, roomID, userID string, auto bool) (*domain.Room, error) {
	current, err := s.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	// Fail fast before touching the question bank.
	if err := checkStart(current, userID, auto); err != nil {
		return nil, err
	}

	questions := s.loadQuestions(ctx, current)
	now := s.now()
	var t transition
	room, _, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		t = transition{}
		if err := checkStart(r, userID, auto); err != nil {
			return Skip, err
		}
		r.Questions = questions
		r.CurrentQuestion = 0
		r.QuestionStartedAt = now
		r.StartedAt = now
		r.Status = domain.StatusPlaying
		r.Results = nil
		for _, p := range r.Players {
			p.Score = 0
			p.Answers = map[int]domain.Answer{}
		}
		r.LastActivity = now
		t.started = true
		return Save, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("battle started",
		zap.String("roomId", roomID),
		zap.Bool("auto", auto),
		zap.Int("players", len(room.Players)),
		zap.Int("questions", len(room.Questions)),
	)
	s.settle(room, t)
	return room, nil
}

func checkStart(r *domain.Room, userID string, auto bool) error {
	if !auto {
		if _, ok := r.Players[userID]; !ok {
			return domain.ErrPlayerNotInRoom
		}
		if r.HostID != userID {
			return domain.ErrNotHost
		}
	}
	if r.Status != domain.StatusWaiting {
		return domain.ErrGameInProgress
	}
	if r.ConnectedCount() < domain.MinPlayers {
		return domain.ErrNotEnoughPlayers
	}
	if auto {
		if !autoStartReady(r) {
			return domain.ErrPlayersNotReady
		}
		return nil
	}
	for _, p := range r.Players {
		if p.Connected && !p.Ready {
			return domain.ErrPlayersNotReady
		}
	}
	return nil
}

// autoStartReady holds for a matchmaking room with exactly two seated, ready players.
func autoStartReady(r *domain.Room) bool {
	if !r.Matchmaking || r.Status != domain.StatusWaiting || len(r.Players) != matchmakingCapacity {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready || !p.Connected {
			return false
		}
	}
	return true
}

// maybeAutoStart schedules the start of a filled matchmaking room after a short
// delay. Extra triggers are harmless: the start guard runs inside the update.
func (s *RoomService) maybeAutoStart(room *domain.Room) {
	if room == nil || !autoStartReady(room) {
		return
	}
	roomID := room.ID
	s.scheduler.AfterFunc(s.settings.AutoStartDelay, func() {
		ctx, cancel := s.timerContext()
		defer cancel()
		_, err := s.beginBattle(ctx, roomID, "", true)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrGameInProgress),
			errors.Is(err, domain.ErrRoomNotFound),
			errors.Is(err, domain.ErrNotEnoughPlayers),
			errors.Is(err, domain.ErrPlayersNotReady):
			s.logger.Debug("auto start skipped", zap.String("roomId", roomID), zap.Error(err))
		default:
			s.logger.Warn("auto start failed", zap.String("roomId", roomID), zap.Error(err))
		}
	})
}

// SubmitAnswer records the first answer a participant gives to the current question,
// scores it, and advances the room when everyone connected has answered.
func (s *RoomService) SubmitAnswer(ctx context.Context, roomID string, index int, userID, value string) (AnswerResult, error) {
	now := s.now()
	var res AnswerResult
	var t transition
	room, _, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		res, t = AnswerResult{QuestionIndex: index}, transition{}
		p, ok := r.Players[userID]
		if !ok {
			return Skip, domain.ErrPlayerNotInRoom
		}
		res.TotalScore = p.Score
		if r.Status != domain.StatusPlaying {
			return Skip, nil
		}
		// A submission proves a live session even when presence has lapsed.
		t.resumed = !p.Connected
		p.Connected = true
		dropped := func() (Action, error) {
			if !t.resumed {
				return Skip, nil
			}
			t.advanced, t.finished = advance(r, now)
			r.LastActivity = now
			return Save, nil
		}
		if r.CurrentQuestion != index {
			return dropped()
		}
		if prior, ok := p.Answers[index]; ok {
			res.Correct = prior.Correct
			return dropped()
		}
		if p.Answers == nil {
			p.Answers = map[int]domain.Answer{}
		}
		question := r.Questions[index]
		correct := AnswersMatch(value, question.Answer)
		p.Answers[index] = domain.Answer{Value: value, Correct: correct, SubmittedAt: now}
		if correct {
			res.Awarded = question.Award()
			p.Score += res.Awarded
		}
		res.Accepted = true
		res.Correct = correct
		res.TotalScore = p.Score
		t.advanced, t.finished = advance(r, now)
		r.LastActivity = now
		return Save, nil
	})
	if err != nil {
		return AnswerResult{}, err
	}
	res.Room = room
	if room.Status == domain.StatusPlaying {
		s.markOnline(ctx, roomID, userID)
	}
	if t.resumed {
		s.logger.Info("player resumed by answer", zap.String("roomId", roomID), zap.String("userId", userID))
	}
	if !res.Accepted {
		s.logger.Debug("answer dropped", zap.String("roomId", roomID), zap.String("userId", userID), zap.Int("index", index))
	}
	s.settle(room, t)
	return res, nil
}

// ExpireQuestion closes question index once its clock ran out: connected
// participants without an answer get NoAnswer and the room advances. Participants
// whose presence lapsed are marked disconnected first so they do not hold up the room.
func (s *RoomService) ExpireQuestion(ctx context.Context, roomID string, index int) error {
	current, err := s.store.Get(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Status != domain.StatusPlaying || current.CurrentQuestion != index {
		return nil
	}
	offline := s.lapsedParticipants(ctx, current)

	now := s.now()
	var t transition
	room, action, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		t = transition{}
		if r.Status != domain.StatusPlaying || r.CurrentQuestion != index {
			return Skip, nil
		}
		changed := false
		for _, id := range offline {
			if p, ok := r.Players[id]; ok && p.Connected {
				p.Connected = false
				changed = true
			}
		}
		for _, p := range r.Players {
			if !p.Connected || p.HasAnswered(index) {
				continue
			}
			if p.Answers == nil {
				p.Answers = map[int]domain.Answer{}
			}
			p.Answers[index] = domain.Answer{Value: domain.NoAnswer, SubmittedAt: now}
			changed = true
		}
		t.advanced, t.finished = advance(r, now)
		if !changed && !t.advanced && !t.finished {
			return Skip, nil
		}
		r.LastActivity = now
		return Save, nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if action == Save {
		s.logger.Debug("question expired", zap.String("roomId", roomID), zap.Int("index", index))
		s.settle(room, t)
	}
	return nil
}

func (s *RoomService) lapsedParticipants(ctx context.Context, room *domain.Room) []string {
	if s.presence == nil {
		return nil
	}
	var lapsed []string
	for id, p := range room.Players {
		if !p.Connected {
			continue
		}
		online, err := s.presence.Online(ctx, room.ID, id)
		if err != nil {
			s.logger.Warn("presence lookup", zap.String("roomId", room.ID), zap.String("userId", id), zap.Error(err))
			continue
		}
		if !online {
			lapsed = append(lapsed, id)
		}
	}
	return lapsed
}
