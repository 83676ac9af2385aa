package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"anniv-certificate-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (file, Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizCode string) (domain.Quiz, error)
}

// QuizRepository caches whole quizzes in Redis and falls back to a loader on cache miss.
// Quizzes are stored as JSON: SET quiz:{quizCode} {json} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizCode string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizCode); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizCode, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if quiz, ok := r.cached(ctx, quizCode); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizCode)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := r.client.Set(ctx, r.key(quizCode), raw, r.ttlWithJitter()).Err(); err != nil {
			slog.Warn("quiz cache write failed", "quizCode", quizCode, "error", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached copy of a quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizCode string) error {
	return r.client.Del(ctx, r.key(quizCode)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizCode string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.key(quizCode)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("quiz cache read failed", "quizCode", quizCode, "error", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		slog.Warn("quiz cache entry corrupt", "quizCode", quizCode, "error", err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(quizCode string) string {
	return "quiz:" + quizCode
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl + time.Duration(rand.Int63n(int64(r.ttl)/10+1))
}
