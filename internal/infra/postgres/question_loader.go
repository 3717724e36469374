package postgres

import (
	"context"
	"fmt"
	"time"

	"battle-room-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads question banks from the questions table. An empty scope
// selects every question.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, scope string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT prompt, answer, time_limit_ms, explanation, points
		FROM questions
		WHERE $1 = '' OR scope = $1
		ORDER BY id`, scope)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			limitMS int64
		)
		if err := rows.Scan(&q.Prompt, &q.Answer, &limitMS, &q.Explanation, &q.Points); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.TimeLimit = time.Duration(limitMS) * time.Millisecond
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuestionsUnavailable
	}
	return questions, nil
}
