package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"anniv-certificate-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads quiz JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizCode string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE code=$1`, quizCode).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// SaveQuiz upserts quiz content. With overwrite false an existing row is kept.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz, overwrite bool) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	query := `INSERT INTO quizzes (code, data) VALUES ($1, $2::jsonb) ON CONFLICT (code) DO NOTHING`
	if overwrite {
		query = `INSERT INTO quizzes (code, data) VALUES ($1, $2::jsonb)
			ON CONFLICT (code) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	}
	if _, err := l.pool.Exec(ctx, query, quiz.Code, string(data)); err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}
