package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"

	"github.com/google/uuid"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizCode string) (domain.Quiz, error)
}

// PassTokenStore keeps issued pass tokens until they expire.
type PassTokenStore interface {
	Save(ctx context.Context, token domain.PassToken, ttl time.Duration) error
	// Lookup returns domain.ErrPassTokenInvalid for unknown or expired tokens.
	Lookup(ctx context.Context, token string) (domain.PassToken, error)
}

// AttemptRepository records validation attempts. Saving an attempt with an
// existing ID replaces it.
type AttemptRepository interface {
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
	ListAttempts(ctx context.Context, quizCode string) ([]domain.Attempt, error)
}

// QuizSettings configures QuizService.
type QuizSettings struct {
	ActiveCode    string
	PassTokenTTL  time.Duration
	RevealAnswers bool
}

// QuizService serves the active quiz and validates answer sets.
type QuizService struct {
	quizzes  QuizRepository
	tokens   PassTokenStore
	attempts AttemptRepository
	settings QuizSettings
	now      func() time.Time
	newID    func() string
}

func NewQuizService(quizzes QuizRepository, tokens PassTokenStore, attempts AttemptRepository, settings QuizSettings) *QuizService {
	if settings.PassTokenTTL <= 0 {
		settings.PassTokenTTL = 24 * time.Hour
	}
	return &QuizService{
		quizzes:  quizzes,
		tokens:   tokens,
		attempts: attempts,
		settings: settings,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps and tokens.
func NewQuizServiceWithClock(quizzes QuizRepository, tokens PassTokenStore, attempts AttemptRepository, settings QuizSettings, now func() time.Time, newID func() string) *QuizService {
	s := NewQuizService(quizzes, tokens, attempts, settings)
	s.now = now
	s.newID = newID
	return s
}

// ActiveCode is the quiz code served by GetActiveQuiz.
func (s *QuizService) ActiveCode() string {
	return s.settings.ActiveCode
}

// GetActiveQuiz returns the active quiz with questions and options in display order.
func (s *QuizService) GetActiveQuiz(ctx context.Context) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, s.settings.ActiveCode)
	if err != nil {
		return domain.Quiz{}, err
	}
	return presentQuiz(quiz, s.settings.RevealAnswers), nil
}

// Validate scores an answer set against the active quiz and always issues a
// pass token; AllCorrect is informational.
func (s *QuizService) Validate(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error) {
	if len(req.Answers) == 0 {
		return domain.ValidationResult{}, domain.ErrNoAnswers
	}
	if req.QuizCode != s.settings.ActiveCode {
		return domain.ValidationResult{}, domain.ErrQuizCodeMismatch
	}
	quiz, err := s.quizzes.GetQuiz(ctx, s.settings.ActiveCode)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	items, correctCnt, err := scoreAnswers(quiz, req.Answers)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	now := s.now()
	attemptID := req.AttemptID
	if attemptID == "" {
		attemptID = s.newID()
	}
	token := domain.PassToken{
		Token:      s.newID(),
		QuizCode:   quiz.Code,
		AttemptID:  attemptID,
		AllCorrect: correctCnt == len(quiz.Questions),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.settings.PassTokenTTL),
	}
	if err := s.tokens.Save(ctx, token, s.settings.PassTokenTTL); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("save pass token: %w", err)
	}

	attempt := domain.Attempt{
		ID:          attemptID,
		QuizCode:    quiz.Code,
		Items:       items,
		CorrectCnt:  correctCnt,
		QuestionCnt: len(quiz.Questions),
		CreatedAt:   now,
	}
	if err := s.attempts.SaveAttempt(ctx, attempt); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("save attempt: %w", err)
	}

	return domain.ValidationResult{
		AllCorrect: token.AllCorrect,
		Items:      items,
		PassToken:  token.Token,
		ExpiresAt:  token.ExpiresAt,
	}, nil
}

// scoreAnswers grades every quiz question. Unanswered questions are incorrect;
// questions without a known correct option accept any answer.
func scoreAnswers(quiz domain.Quiz, answers []domain.AnswerSubmission) ([]domain.ValidationItem, int, error) {
	byQuestion := make(map[int64]domain.AnswerSubmission, len(answers))
	for _, a := range answers {
		question, ok := quiz.Question(a.QuestionID)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, a.QuestionID)
		}
		if a.OptionID != 0 {
			if _, ok := question.Option(a.OptionID); !ok {
				return nil, 0, fmt.Errorf("%w: %d", domain.ErrOptionNotFound, a.OptionID)
			}
		}
		byQuestion[a.QuestionID] = a
	}

	items := make([]domain.ValidationItem, 0, len(quiz.Questions))
	correctCnt := 0
	for _, q := range sortedQuestions(quiz.Questions) {
		a, answered := byQuestion[q.ID]
		correct := false
		switch {
		case !answered:
		case q.IsTextInput():
			correct = strings.TrimSpace(a.Text) != "" || a.OptionID != 0
		case a.OptionID == 0:
		default:
			if want, ok := q.CorrectOption(); ok {
				correct = want.ID == a.OptionID
			} else {
				correct = true
			}
		}
		if correct {
			correctCnt++
		}
		items = append(items, domain.ValidationItem{QuestionID: q.ID, Correct: correct})
	}
	return items, correctCnt, nil
}

// presentQuiz copies quiz so the cached value is never mutated.
func presentQuiz(quiz domain.Quiz, reveal bool) domain.Quiz {
	out := domain.Quiz{Code: quiz.Code, Title: quiz.Title}
	out.Questions = sortedQuestions(quiz.Questions)
	for i := range out.Questions {
		opts := make([]domain.Option, len(out.Questions[i].Options))
		copy(opts, out.Questions[i].Options)
		sort.SliceStable(opts, func(a, b int) bool { return opts[a].IdxNo < opts[b].IdxNo })
		if !reveal {
			for j := range opts {
				opts[j].IfCorrect = nil
			}
		}
		out.Questions[i].Options = opts
	}
	return out
}

func sortedQuestions(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].IdxNo < out[j].IdxNo })
	return out
}
