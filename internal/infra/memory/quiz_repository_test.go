package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"anniv-certificate-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(DefaultQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "ANNIV25QZ-0001"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuiz(context.Background(), "ANNIV25QZ-0001"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}

	repo.Invalidate("ANNIV25QZ-0001")
	if _, err := repo.GetQuiz(context.Background(), "ANNIV25QZ-0001"); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(DefaultQuiz())}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), "ANNIV25QZ-0001")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "ANNIV25QZ-0001")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryUnknownCode(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(DefaultQuiz()), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestLoadQuizFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	raw := `
quizCode: QZ-FILE
title: File quiz
questions:
  - id: 10
    idxNo: 1
    content: Pick one
    options:
      - {id: 100, idxNo: 1, content: A, ifCorrect: true}
      - {id: 101, idxNo: 2, content: B, ifCorrect: false}
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	quiz, err := LoadQuizFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quiz.Code != "QZ-FILE" || len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	opt, ok := quiz.Questions[0].CorrectOption()
	if !ok || opt.ID != 100 {
		t.Fatalf("expected option 100 correct, got %+v", opt)
	}
}

func TestLoadQuizFileRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.json")
	if err := os.WriteFile(path, []byte(`{"quizCode":"X"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadQuizFile(path); err == nil {
		t.Fatalf("expected error for quiz without questions")
	}
}

func TestDefaultQuizShape(t *testing.T) {
	quiz := DefaultQuiz()
	if !quiz.Questions[2].IsTextInput() {
		t.Fatalf("expected last question to be free text")
	}
	if _, ok := quiz.Questions[0].CorrectOption(); ok {
		t.Fatalf("constellation question has no correct answer")
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizCode string) (domain.Quiz, error) {
	l.calls.Add(1)
	return l.QuizLoader.LoadQuiz(ctx, quizCode)
}
