package wizard

import (
	"sort"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"
)

// Session is the state of one visitor's attempt. It is discarded on restart.
type Session struct {
	QuizCode   string
	Title      string
	Questions  []domain.Question
	Index      int
	Selected   map[int64]int64
	Texts      map[int64]string
	PassToken  string
	ExpiresAt  time.Time
	AllCorrect bool
	AttemptID  string
}

func newSession(attemptID string) *Session {
	return &Session{
		Selected:  make(map[int64]int64),
		Texts:     make(map[int64]string),
		AttemptID: attemptID,
	}
}

func (s *Session) loaded() bool {
	return len(s.Questions) > 0
}

func (s *Session) load(q domain.Quiz) {
	questions := make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		opts := append([]domain.Option(nil), question.Options...)
		sort.SliceStable(opts, func(a, b int) bool { return opts[a].IdxNo < opts[b].IdxNo })
		question.Options = opts
		questions[i] = question
	}
	sort.SliceStable(questions, func(a, b int) bool { return questions[a].IdxNo < questions[b].IdxNo })
	s.QuizCode = q.Code
	s.Title = q.Title
	s.Questions = questions
	s.Index = 0
}

func (s *Session) current() domain.Question {
	return s.Questions[s.Index]
}

func (s *Session) last() bool {
	return s.Index == len(s.Questions)-1
}

// answered reports whether q has a usable answer.
func (s *Session) answered(q domain.Question) bool {
	if q.IsTextInput() {
		return strings.TrimSpace(s.Texts[q.ID]) != ""
	}
	_, ok := s.Selected[q.ID]
	return ok
}

// request builds the validation payload in question order. Unanswered
// questions are left out.
func (s *Session) request() domain.ValidationRequest {
	req := domain.ValidationRequest{QuizCode: s.QuizCode, AttemptID: s.AttemptID}
	for _, q := range s.Questions {
		if q.IsTextInput() {
			text := strings.TrimSpace(s.Texts[q.ID])
			if text == "" {
				continue
			}
			a := domain.AnswerSubmission{QuestionID: q.ID, Text: text}
			if len(q.Options) == 1 {
				a.OptionID = q.Options[0].ID
			}
			req.Answers = append(req.Answers, a)
			continue
		}
		if oid, ok := s.Selected[q.ID]; ok {
			req.Answers = append(req.Answers, domain.AnswerSubmission{QuestionID: q.ID, OptionID: oid})
		}
	}
	return req
}

// Applicant is the personal data entered on the form step.
type Applicant struct {
	Name       string
	EmployeeID string
	JoinDate   string
	// Constellation is derived from the answer to question 1.
	Constellation string
	Wishes        string
}

const (
	ConstellationQuestionID int64 = 1

	ConstellationBigDipper = "bigdipper"
	ConstellationGalaxy    = "galaxy"
	ConstellationOrion     = "orion"
	ConstellationOther     = "other"
)

var constellations = map[int64]string{
	1: ConstellationBigDipper,
	2: ConstellationGalaxy,
	3: ConstellationOrion,
	4: ConstellationOther,
}

// ConstellationFor maps the option chosen for question 1.
func ConstellationFor(optionID int64) string {
	if c, ok := constellations[optionID]; ok {
		return c
	}
	return ConstellationOther
}
