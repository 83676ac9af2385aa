package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"anniv-certificate-service/internal/domain"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// QuizLoader fetches quiz content from a backing store (file, Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizCode string) (domain.Quiz, error)
}

// QuizRepository caches quizzes per code with a jittered TTL.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizCode string) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizCode); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizCode, func() (interface{}, error) {
		if quiz, ok := r.cached(quizCode); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizCode)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.mu.Lock()
		r.cache[quizCode] = cachedQuiz{quiz: quiz, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached copy of a quiz.
func (r *QuizRepository) Invalidate(quizCode string) {
	r.mu.Lock()
	delete(r.cache, quizCode)
	r.mu.Unlock()
}

func (r *QuizRepository) cached(quizCode string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizCode]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	return r.ttl + time.Duration(rand.Int63n(int64(r.ttl)/10+1))
}

// StaticQuizLoader serves quizzes from a map, e.g. the built-in campaign quiz.
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	m := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		m[q.Code] = q
	}
	return &StaticQuizLoader{quizzes: m}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizCode string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizCode]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// LoadQuizFile reads a quiz from a .json, .yaml or .yml file.
func LoadQuizFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("read quiz file: %w", err)
	}
	var quiz domain.Quiz
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &quiz)
	default:
		err = yaml.Unmarshal(data, &quiz)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("parse quiz file %s: %w", path, err)
	}
	if quiz.Code == "" || len(quiz.Questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("quiz file %s: missing quizCode or questions", path)
	}
	return quiz, nil
}

// DefaultQuiz is the built-in anniversary quiz.
func DefaultQuiz() domain.Quiz {
	yes, no := true, false
	return domain.Quiz{
		Code:  "ANNIV25QZ-0001",
		Title: "2025周年探索问答",
		Questions: []domain.Question{
			{
				ID: 1, IdxNo: 1,
				Content: "如果你是一颗星星，你希望自己属于哪个星座？",
				Options: []domain.Option{
					{ID: 1, IdxNo: 1, Content: "北斗七星"},
					{ID: 2, IdxNo: 2, Content: "银河系中心"},
					{ID: 3, IdxNo: 3, Content: "猎户座"},
					{ID: 4, IdxNo: 4, Content: "其他"},
				},
			},
			{
				ID: 2, IdxNo: 2,
				Content: "公司是在哪一年成立的？",
				Options: []domain.Option{
					{ID: 5, IdxNo: 1, Content: "2015年", IfCorrect: &no},
					{ID: 6, IdxNo: 2, Content: "2017年", IfCorrect: &yes},
					{ID: 7, IdxNo: 3, Content: "2019年", IfCorrect: &no},
					{ID: 8, IdxNo: 4, Content: "2021年", IfCorrect: &no},
				},
			},
			{
				ID: 3, IdxNo: 3,
				Content: "用一个词形容你与公司一起走过的旅程",
				Options: []domain.Option{
					{ID: 9, IdxNo: 1, Content: domain.TextInputMarker},
				},
			},
		},
	}
}
