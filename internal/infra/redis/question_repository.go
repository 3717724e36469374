package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"battle-room-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a question bank from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, scope string) ([]domain.Question, error)
}

// QuestionRepository caches question banks in Redis (hash per scope) and falls
// back to a loader on cache miss.
// Questions are stored as: HSET questions:{scope} {position} {question JSON}
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuestions implements app.QuestionSource.
func (r *QuestionRepository) FetchQuestions(ctx context.Context, scope string) ([]domain.Question, error) {
	key := questionsKey(scope)

	if cached, err := r.client.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
		if questions, ok := decodeBank(cached); ok {
			return questions, nil
		}
	}

	result, err, _ := r.sf.Do(scope, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := r.client.HGetAll(ctx, key).Result(); err == nil && len(cached) > 0 {
			if questions, ok := decodeBank(cached); ok {
				return questions, nil
			}
		}

		questions, err := r.loader.LoadQuestions(ctx, scope)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return nil, domain.ErrQuestionsUnavailable
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, key)
		for i, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, key, strconv.Itoa(i), raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// A failed cache fill only costs the next caller a reload.
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func decodeBank(cached map[string]string) ([]domain.Question, bool) {
	type positioned struct {
		pos int
		q   domain.Question
	}
	entries := make([]positioned, 0, len(cached))
	for field, raw := range cached {
		pos, err := strconv.Atoi(field)
		if err != nil {
			return nil, false
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		entries = append(entries, positioned{pos: pos, q: q})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	questions := make([]domain.Question, len(entries))
	for i, e := range entries {
		questions[i] = e.q
	}
	return questions, true
}

func questionsKey(scope string) string {
	return "questions:" + scope
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
