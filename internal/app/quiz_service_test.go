package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"anniv-certificate-service/internal/app"
	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/infra/memory"
)

var testNow = time.Date(2025, 9, 6, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	quizzes *memory.QuizRepository
	tokens  *memory.PassTokenStore
	store   *memory.CertificateStore
	feed    *app.Feed
	quiz    *app.QuizService
	certs   *app.CertificateService
	admin   *app.AdminService
}

func newTestEnv(reveal bool) *testEnv {
	env := &testEnv{
		quizzes: memory.NewQuizRepository(memory.NewStaticQuizLoader(memory.DefaultQuiz()), time.Minute),
		tokens:  memory.NewPassTokenStore(),
		store:   memory.NewCertificateStore(),
		feed:    app.NewFeed(),
	}
	clock := func() time.Time { return testNow }
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	env.quiz = app.NewQuizServiceWithClock(env.quizzes, env.tokens, env.store, app.QuizSettings{
		ActiveCode:    "ANNIV25QZ-0001",
		RevealAnswers: reveal,
	}, clock, newID)
	env.admin = app.NewAdminServiceWithClock(env.store, env.store, env.quizzes, env.feed, app.AdminSettings{
		QuizCode:   "ANNIV25QZ-0001",
		TargetDate: time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC),
		Location:   time.UTC,
	}, clock)
	env.certs = app.NewCertificateServiceWithClock(env.store, env.tokens, env.admin, app.CertificateSettings{
		ScsCode:    "SCS01",
		TargetDate: time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC),
	}, clock)
	return env
}

func allAnswers() []domain.AnswerSubmission {
	return []domain.AnswerSubmission{
		{QuestionID: 1, OptionID: 3},
		{QuestionID: 2, OptionID: 6},
		{QuestionID: 3, OptionID: 9, Text: "星辰大海"},
	}
}

func TestGetActiveQuizHidesAnswers(t *testing.T) {
	env := newTestEnv(false)
	quiz, err := env.quiz.GetActiveQuiz(context.Background())
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Code != "ANNIV25QZ-0001" || len(quiz.Questions) != 3 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	for _, q := range quiz.Questions {
		for _, o := range q.Options {
			if o.IfCorrect != nil {
				t.Fatalf("answers must be hidden, question %d option %d", q.ID, o.ID)
			}
		}
	}

	cached, _ := env.quizzes.GetQuiz(context.Background(), "ANNIV25QZ-0001")
	if cached.Questions[1].Options[1].IfCorrect == nil {
		t.Fatalf("presenting must not mutate the cached quiz")
	}
}

func TestGetActiveQuizRevealsAnswers(t *testing.T) {
	env := newTestEnv(true)
	quiz, err := env.quiz.GetActiveQuiz(context.Background())
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	want, ok := quiz.Questions[1].CorrectOption()
	if !ok || want.ID != 6 {
		t.Fatalf("expected option 6 flagged correct, got %+v %v", want, ok)
	}
	if _, ok := quiz.Questions[0].CorrectOption(); ok {
		t.Fatalf("constellation question has no correct option")
	}
}

func TestValidateIssuesTokenRegardlessOfScore(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	answers := allAnswers()
	answers[1].OptionID = 5
	res, err := env.quiz.Validate(ctx, domain.ValidationRequest{QuizCode: "ANNIV25QZ-0001", Answers: answers, AttemptID: "a-1"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.AllCorrect || res.PassToken == "" {
		t.Fatalf("expected token despite wrong answer, got %+v", res)
	}
	if !res.ExpiresAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Fatalf("expected 24h expiry, got %s", res.ExpiresAt)
	}
	want := []bool{true, false, true}
	for i, item := range res.Items {
		if item.QuestionID != int64(i+1) || item.Correct != want[i] {
			t.Fatalf("item %d: %+v", i, item)
		}
	}

	token, err := env.tokens.Lookup(ctx, res.PassToken)
	if err != nil || token.AttemptID != "a-1" || token.AllCorrect {
		t.Fatalf("unexpected stored token %+v %v", token, err)
	}

	res, err = env.quiz.Validate(ctx, domain.ValidationRequest{QuizCode: "ANNIV25QZ-0001", Answers: allAnswers(), AttemptID: "a-1"})
	if err != nil || !res.AllCorrect {
		t.Fatalf("expected all correct on resubmission, got %+v %v", res, err)
	}
	attempts, _ := env.store.ListAttempts(ctx, "ANNIV25QZ-0001")
	if len(attempts) != 1 || attempts[0].CorrectCnt != 3 {
		t.Fatalf("expected one deduped attempt, got %+v", attempts)
	}
}

func TestValidateUnansweredIsIncorrect(t *testing.T) {
	env := newTestEnv(false)
	res, err := env.quiz.Validate(context.Background(), domain.ValidationRequest{
		QuizCode: "ANNIV25QZ-0001",
		Answers:  []domain.AnswerSubmission{{QuestionID: 2, OptionID: 6}},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.AllCorrect || res.Items[0].Correct || !res.Items[1].Correct || res.Items[2].Correct {
		t.Fatalf("unexpected items %+v", res.Items)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()
	cases := []struct {
		req  domain.ValidationRequest
		want error
	}{
		{domain.ValidationRequest{QuizCode: "ANNIV25QZ-0001"}, domain.ErrNoAnswers},
		{domain.ValidationRequest{QuizCode: "OTHER", Answers: allAnswers()}, domain.ErrQuizCodeMismatch},
		{domain.ValidationRequest{QuizCode: "ANNIV25QZ-0001", Answers: []domain.AnswerSubmission{{QuestionID: 42, OptionID: 1}}}, domain.ErrQuestionNotFound},
		{domain.ValidationRequest{QuizCode: "ANNIV25QZ-0001", Answers: []domain.AnswerSubmission{{QuestionID: 2, OptionID: 1}}}, domain.ErrOptionNotFound},
	}
	for i, tc := range cases {
		if _, err := env.quiz.Validate(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}
	if env.tokens.Len() != 0 {
		t.Fatalf("rejected requests must not issue tokens")
	}
}
