package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"

	"battle-room-service/internal/domain"
	"go.uber.org/zap"
)

// loadQuestions picks the question set for a battle. Content problems never stop
// a battle: an error or an empty bank falls back to generated arithmetic.
func (s *RoomService) loadQuestions(ctx context.Context, room *domain.Room) []domain.Question {
	count := s.settings.QuestionCount
	if count <= 0 {
		count = DefaultSettings().QuestionCount
	}

	var bank []domain.Question
	if s.questions != nil {
		fetched, err := s.questions.FetchQuestions(ctx, room.Scope)
		if err != nil {
			s.logger.Warn("question bank unavailable, using fallback", zap.String("roomId", room.ID), zap.String("scope", room.Scope), zap.Error(err))
		}
		bank = fetched
	}

	var picked []domain.Question
	if len(bank) == 0 {
		picked = FallbackQuestions(room.ID, count)
	} else {
		picked = append([]domain.Question(nil), bank...)
		rnd := rand.New(rand.NewSource(seedFor(room.ID)))
		rnd.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
		if len(picked) > count {
			picked = picked[:count]
		}
	}

	for i := range picked {
		if picked[i].TimeLimit <= 0 {
			picked[i].TimeLimit = s.settings.TimeLimit
		}
	}
	return picked
}

// FallbackQuestions generates count arithmetic questions. The same seed always
// yields the same questions.
func FallbackQuestions(seed string, count int) []domain.Question {
	rnd := rand.New(rand.NewSource(seedFor(seed)))
	questions := make([]domain.Question, 0, count)
	for i := 0; i < count; i++ {
		var a, b, result int
		var op string
		switch rnd.Intn(3) {
		case 0:
			a, b = rnd.Intn(50)+1, rnd.Intn(50)+1
			op, result = "+", a+b
		case 1:
			a, b = rnd.Intn(50)+1, rnd.Intn(50)+1
			if b > a {
				a, b = b, a
			}
			op, result = "-", a-b
		default:
			a, b = rnd.Intn(12)+1, rnd.Intn(12)+1
			op, result = "×", a*b
		}
		questions = append(questions, domain.Question{
			Prompt:      fmt.Sprintf("What is %d %s %d?", a, op, b),
			Answer:      fmt.Sprint(result),
			Explanation: fmt.Sprintf("%d %s %d = %d", a, op, b, result),
			Points:      1,
		})
	}
	return questions
}

func seedFor(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
