package wizard

import (
	"errors"

	"anniv-certificate-service/internal/domain"
)

// Step is the primary state of the wizard.
type Step int

const (
	StepHero Step = iota
	StepQuiz
	StepWishes
	StepForm
	StepLoading
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepHero:
		return "hero"
	case StepQuiz:
		return "quiz"
	case StepWishes:
		return "wishes"
	case StepForm:
		return "form"
	case StepLoading:
		return "loading"
	case StepResult:
		return "result"
	}
	return "unknown"
}

// Action names a network-triggering operation.
type Action string

const (
	ActionFetch    Action = "fetch"
	ActionValidate Action = "validate"
	ActionIssue    Action = "issue"
)

// Status is the overlay state shown on top of the current step: one of
// Idle, Busy, Failed or ShowingHint.
type Status interface {
	status()
}

type Idle struct{}

// Busy means a call for Action is in flight.
type Busy struct {
	Action Action
}

// Failed is a network failure the user can retry.
type Failed struct {
	Action    Action
	Message   string
	Retryable bool
	Err       error
}

// ShowingHint carries the correct answer of a question answered wrongly.
type ShowingHint struct {
	Hint Hint
}

func (Idle) status()        {}
func (Busy) status()        {}
func (Failed) status()      {}
func (ShowingHint) status() {}

// Hint points at the correct option of a question.
type Hint struct {
	QuestionID int64
	Label      string
	Content    string
	Text       string
}

var (
	ErrBusy      = errors.New("wizard: action already in progress")
	ErrWrongStep = errors.New("wizard: action not allowed in current step")
	ErrStale     = errors.New("wizard: response discarded after navigation")
	ErrNoQuiz    = errors.New("wizard: no quiz loaded")
)

// InputError is a local validation failure. It never reaches the network
// and leaves the step unchanged.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Message
}

// View is an immutable snapshot of the wizard for rendering.
type View struct {
	Step   Step
	Status Status
	// Error is the inline message of the last local validation failure.
	Error string

	QuizCode string
	Title    string
	Index    int
	Total    int
	Question *domain.Question
	// Selected is the chosen option of the current question, zero if none.
	Selected int64
	Text     string

	CanPrevious bool
	CanRetry    bool

	Applicant    Applicant
	HasPassToken bool
	AllCorrect   bool

	// PlaceholderDays is a local estimate shown while the certificate is
	// being issued. It is nil once the server result is known.
	PlaceholderDays *int
	Certificate     *domain.Certificate
	IssueMessage    string
	Demo            bool
}
