package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"battle-room-service/internal/domain"
	"battle-room-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"math": sampleQuestions(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	first, err := repo.FetchQuestions(context.Background(), "math")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("questions:math") {
		t.Fatalf("expected cache hash to be written")
	}

	// Second call should hit cache, loader not incremented.
	second, err := repo.FetchQuestions(context.Background(), "math")
	if err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(second) != len(first) || second[0].Prompt != first[0].Prompt || second[1].Answer != "Paris" {
		t.Fatalf("cached bank differs: %+v", second)
	}
	if second[1].TimeLimit != 20*time.Second {
		t.Fatalf("expected time limit preserved, got %v", second[1].TimeLimit)
	}
}

func TestQuestionRepositoryUnknownScope(t *testing.T) {
	_, client := newMiniredis(t)
	repo := NewQuestionRepository(client, memory.NewStaticQuestionLoader(nil), time.Minute)
	if _, err := repo.FetchQuestions(context.Background(), "nope"); !errors.Is(err, domain.ErrQuestionsUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, scope string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, scope)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Prompt: "What is 2 + 2?", Answer: "4", Points: 1},
		{Prompt: "Capital of France?", Answer: "Paris", TimeLimit: 20 * time.Second, Points: 2},
	}
}
