// Package wizard drives a visitor through the anniversary funnel:
// hero, quiz, wishes, form, loading and result.
//
// Every operation is safe for concurrent use. State is guarded by a mutex
// that is released while network calls are in flight; responses that come
// back after the visitor navigated away or restarted are discarded.
package wizard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"anniv-certificate-service/internal/client"
	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/i18n"

	"github.com/google/uuid"
)

const (
	DefaultHintDelay  = 300 * time.Millisecond
	DefaultIssueDelay = 2000 * time.Millisecond
)

// API is the backend the wizard talks to. *client.Client satisfies it.
type API interface {
	FetchQuiz(ctx context.Context) (domain.Quiz, error)
	ValidateAnswers(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error)
	IssueCertificate(ctx context.Context, req domain.IssueRequest) (client.IssueResponse, error)
}

// Translator resolves user-visible messages. i18n.Translator satisfies it.
type Translator interface {
	T(msgID string) string
	Td(msgID string, data map[string]any) string
}

// Renderer turns an issued certificate into a downloadable document.
type Renderer interface {
	Render(w io.Writer, cert domain.Certificate, applicant Applicant) error
}

// Timer is a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs delayed callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Option func(*Wizard)

func WithScheduler(s Scheduler) Option {
	return func(w *Wizard) { w.sched = s }
}

func WithTranslator(t Translator) Option {
	return func(w *Wizard) { w.tr = t }
}

func WithRenderer(r Renderer) Option {
	return func(w *Wizard) { w.render = r }
}

// WithOnChange registers a callback invoked with a fresh View after every
// state change. It runs without the wizard lock held.
func WithOnChange(fn func(View)) Option {
	return func(w *Wizard) { w.onChange = fn }
}

// WithFallbackQuiz serves q when the quiz cannot be fetched. Only meant for
// offline demos.
func WithFallbackQuiz(q domain.Quiz) Option {
	return func(w *Wizard) { w.fallback = &q }
}

// WithDemoCertificates fabricates a DEMO- certificate when issuance fails.
// Only meant for offline demos.
func WithDemoCertificates(enabled bool) Option {
	return func(w *Wizard) { w.demo = enabled }
}

func WithJoinWindow(win domain.JoinWindow) Option {
	return func(w *Wizard) { w.window = win }
}

// WithTargetDate sets the reference date of the placeholder day count. The
// zero time counts to today.
func WithTargetDate(d time.Time) Option {
	return func(w *Wizard) { w.target = d }
}

func WithHintDelay(d time.Duration) Option {
	return func(w *Wizard) { w.hintDelay = d }
}

func WithIssueDelay(d time.Duration) Option {
	return func(w *Wizard) { w.issueDelay = d }
}

func WithIDGenerator(fn func() string) Option {
	return func(w *Wizard) { w.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

type Wizard struct {
	api        API
	sched      Scheduler
	tr         Translator
	render     Renderer
	onChange   func(View)
	window     domain.JoinWindow
	target     time.Time
	fallback   *domain.Quiz
	demo       bool
	hintDelay  time.Duration
	issueDelay time.Duration
	newID      func() string
	now        func() time.Time

	mu          sync.Mutex
	step        Step
	session     *Session
	applicant   Applicant
	inputErr    string
	busy        map[Action]bool
	failure     *Failed
	hint        *Hint
	cert        *domain.Certificate
	issueMsg    string
	isDemo      bool
	placeholder *int
	autoIssued  bool
	demoSerial  int

	// gen changes on restart, epoch on every navigation.
	gen   uint64
	epoch uint64

	// hints holds at most one pending hint per question; shown records the
	// option whose hint was already displayed.
	hints      map[int64]pendingHint
	shown      map[int64]int64
	hintSeq    uint64
	issueTimer Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(api API, opts ...Option) *Wizard {
	w := &Wizard{
		api:        api,
		sched:      realScheduler{},
		tr:         i18n.NewTranslator(i18n.DefaultLang),
		render:     TextRenderer{},
		window:     domain.DefaultJoinWindow(),
		target:     time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC),
		hintDelay:  DefaultHintDelay,
		issueDelay: DefaultIssueDelay,
		newID:      uuid.NewString,
		now:        time.Now,
		busy:       make(map[Action]bool),
		hints:      make(map[int64]pendingHint),
		shown:      make(map[int64]int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

// Explore leaves the hero step and loads the quiz.
func (w *Wizard) Explore(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepHero {
		w.mu.Unlock()
		return ErrWrongStep
	}
	w.step = StepQuiz
	w.epoch++
	if w.session == nil {
		w.session = newSession(w.newID())
	}
	w.mu.Unlock()
	w.changed()
	return w.LoadQuiz(ctx)
}

// LoadQuiz fetches the question set unless one is already loaded. It is
// also the manual retry after a failed fetch.
func (w *Wizard) LoadQuiz(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepQuiz {
		w.mu.Unlock()
		return ErrWrongStep
	}
	if w.session.loaded() {
		w.mu.Unlock()
		return nil
	}
	c, err := w.begin(ActionFetch)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	ctx, done := w.callCtx(ctx)
	w.mu.Unlock()
	w.changed()

	quiz, err := w.api.FetchQuiz(ctx)
	done()

	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if serr := w.finish(c); serr != nil {
		return serr
	}
	if err != nil {
		if w.fallback == nil {
			w.fail(ActionFetch, "QuizLoadFailed", err)
			return err
		}
		slog.Warn("quiz fetch failed, serving fallback quiz", "error", err)
		quiz = *w.fallback
	}
	if len(quiz.Questions) == 0 {
		err := fmt.Errorf("%w: %s has no questions", ErrNoQuiz, quiz.Code)
		w.fail(ActionFetch, "QuizEmpty", err)
		return err
	}
	w.session.load(quiz)
	return nil
}

// SelectOption records the choice for a multiple-choice question. A later
// choice for the same question replaces the earlier one.
func (w *Wizard) SelectOption(questionID, optionID int64) error {
	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	q, err := w.questionLocked(questionID)
	if err != nil {
		return err
	}
	if _, ok := q.Option(optionID); !ok || q.IsTextInput() {
		return domain.ErrOptionNotFound
	}
	w.session.Selected[questionID] = optionID
	if p, ok := w.hints[questionID]; ok && p.optionID != optionID {
		p.timer.Stop()
		delete(w.hints, questionID)
	}
	if questionID == ConstellationQuestionID {
		w.applicant.Constellation = ConstellationFor(optionID)
	}
	w.inputErr = ""
	return nil
}

// EnterText records the answer for a text-input question.
func (w *Wizard) EnterText(questionID int64, text string) error {
	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	q, err := w.questionLocked(questionID)
	if err != nil {
		return err
	}
	if !q.IsTextInput() {
		return domain.ErrOptionNotFound
	}
	w.session.Texts[questionID] = text
	w.inputErr = ""
	return nil
}

// Next advances to the following question, or validates the answers on
// the last one. A wrong answer never blocks; its hint is shown shortly
// after the move.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepQuiz {
		w.mu.Unlock()
		return ErrWrongStep
	}
	if w.session == nil || !w.session.loaded() {
		w.mu.Unlock()
		return ErrNoQuiz
	}
	if w.busy[ActionValidate] {
		w.mu.Unlock()
		return ErrBusy
	}
	q := w.session.current()
	if !w.session.answered(q) {
		msgID := "AnswerRequired"
		if q.IsTextInput() {
			msgID = "TextAnswerRequired"
		}
		err := w.inputLocked("answer", msgID, nil)
		w.mu.Unlock()
		w.changed()
		return err
	}
	w.inputErr = ""
	w.scheduleHintLocked(q)
	if !w.session.last() {
		w.session.Index++
		w.epoch++
		w.mu.Unlock()
		w.changed()
		return nil
	}
	return w.validateLocked(ctx, StepWishes)
}

// Previous moves back one question. It never validates.
func (w *Wizard) Previous() error {
	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if w.step != StepQuiz || w.session == nil || w.session.Index == 0 {
		return ErrWrongStep
	}
	w.session.Index--
	w.epoch++
	w.inputErr = ""
	if w.failure != nil && w.failure.Action == ActionValidate {
		w.failure = nil
	}
	return nil
}

func (w *Wizard) SetWishes(text string) error {
	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if w.step != StepWishes {
		return ErrWrongStep
	}
	w.applicant.Wishes = text
	w.inputErr = ""
	return nil
}

// Complete leaves the wishes step. It repeats the answer validation, which
// is idempotent once a full answer set exists.
func (w *Wizard) Complete(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepWishes {
		w.mu.Unlock()
		return ErrWrongStep
	}
	if strings.TrimSpace(w.applicant.Wishes) == "" {
		err := w.inputLocked("wishes", "WishesRequired", nil)
		w.mu.Unlock()
		w.changed()
		return err
	}
	w.inputErr = ""
	return w.validateLocked(ctx, StepForm)
}

func (w *Wizard) SetApplicant(name, employeeID, joinDate string) error {
	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if w.step != StepForm {
		return ErrWrongStep
	}
	w.applicant.Name = name
	w.applicant.EmployeeID = employeeID
	w.applicant.JoinDate = joinDate
	w.inputErr = ""
	return nil
}

// SubmitForm checks the applicant and moves to the loading step, where the
// certificate is requested after the issue delay.
func (w *Wizard) SubmitForm() error {
	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if w.step != StepForm {
		return ErrWrongStep
	}
	joined, err := w.checkApplicantLocked()
	if err != nil {
		return err
	}
	w.inputErr = ""
	w.step = StepLoading
	w.epoch++
	target := w.target
	if target.IsZero() {
		target = w.now().UTC()
	}
	days := domain.DaysBetween(joined, target)
	if days < 0 {
		days = 0
	}
	w.placeholder = &days
	w.autoIssued = false
	w.scheduleIssueLocked()
	return nil
}

// RetryIssue requests the certificate again after a failure.
func (w *Wizard) RetryIssue(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepLoading {
		w.mu.Unlock()
		return ErrWrongStep
	}
	if w.cert != nil {
		w.mu.Unlock()
		return nil
	}
	if w.issueTimer != nil {
		w.issueTimer.Stop()
		w.issueTimer = nil
	}
	w.autoIssued = true
	return w.issueLocked(ctx)
}

// Download renders the issued certificate into out.
func (w *Wizard) Download(out io.Writer) error {
	w.mu.Lock()
	if w.step != StepResult || w.cert == nil {
		w.mu.Unlock()
		return ErrWrongStep
	}
	cert, applicant := *w.cert, w.applicant
	w.mu.Unlock()
	return w.render.Render(out, cert, applicant)
}

// Restart discards the session and returns to the hero step. Calls still
// in flight are cancelled and their responses ignored.
func (w *Wizard) Restart() {
	w.mu.Lock()
	w.resetLocked()
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()
	w.changed()
}

// Close stops pending timers and cancels in-flight calls.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *Wizard) DismissHint() {
	w.mu.Lock()
	w.hint = nil
	w.mu.Unlock()
	w.changed()
}

// View returns a snapshot of the current state.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := View{
		Step:         w.step,
		Status:       w.statusLocked(),
		Error:        w.inputErr,
		Applicant:    w.applicant,
		IssueMessage: w.issueMsg,
		Demo:         w.isDemo,
	}
	if f, ok := v.Status.(Failed); ok && f.Retryable {
		v.CanRetry = true
	}
	if w.placeholder != nil {
		days := *w.placeholder
		v.PlaceholderDays = &days
	}
	if w.cert != nil {
		cert := *w.cert
		v.Certificate = &cert
	}
	if s := w.session; s != nil {
		v.QuizCode = s.QuizCode
		v.Title = s.Title
		v.HasPassToken = s.PassToken != ""
		v.AllCorrect = s.AllCorrect
		if s.loaded() {
			q := s.current()
			q.Options = append([]domain.Option(nil), q.Options...)
			v.Question = &q
			v.Index = s.Index
			v.Total = len(s.Questions)
			v.Selected = s.Selected[q.ID]
			v.Text = s.Texts[q.ID]
			v.CanPrevious = w.step == StepQuiz && s.Index > 0
		}
	}
	return v
}

// Session returns a copy of the current session, or nil before Explore.
func (w *Wizard) Session() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return nil
	}
	s := *w.session
	s.Selected = make(map[int64]int64, len(w.session.Selected))
	for k, v := range w.session.Selected {
		s.Selected[k] = v
	}
	s.Texts = make(map[int64]string, len(w.session.Texts))
	for k, v := range w.session.Texts {
		s.Texts[k] = v
	}
	return &s
}

// validateLocked submits the answers and moves to next on success. It is
// called with w.mu held and releases it.
func (w *Wizard) validateLocked(ctx context.Context, next Step) error {
	req := w.session.request()
	if len(req.Answers) == 0 {
		err := w.inputLocked("answer", "AnswerRequired", nil)
		w.mu.Unlock()
		w.changed()
		return err
	}
	c, err := w.begin(ActionValidate)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	ctx, done := w.callCtx(ctx)
	w.mu.Unlock()
	w.changed()

	res, err := w.api.ValidateAnswers(ctx, req)
	done()

	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if serr := w.finish(c); serr != nil {
		return serr
	}
	if err != nil {
		w.fail(ActionValidate, "QuizValidateFailed", err)
		return err
	}
	w.session.PassToken = res.PassToken
	w.session.ExpiresAt = res.ExpiresAt
	w.session.AllCorrect = res.AllCorrect
	w.step = next
	w.epoch++
	return nil
}

// issueLocked requests the certificate. It is called with w.mu held and
// releases it.
func (w *Wizard) issueLocked(ctx context.Context) error {
	c, err := w.begin(ActionIssue)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	req := domain.IssueRequest{
		Name:      strings.TrimSpace(w.applicant.Name),
		StartDate: strings.TrimSpace(w.applicant.JoinDate),
		WorkNo:    strings.TrimSpace(w.applicant.EmployeeID),
		Wishes:    strings.TrimSpace(w.applicant.Wishes),
		PassToken: w.session.PassToken,
	}
	ctx, done := w.callCtx(ctx)
	w.mu.Unlock()
	w.changed()

	res, err := w.api.IssueCertificate(ctx, req)
	done()

	w.mu.Lock()
	defer w.changed()
	defer w.mu.Unlock()
	if serr := w.finish(c); serr != nil {
		return serr
	}
	if err != nil {
		if !w.demo {
			w.fail(ActionIssue, "CertificateIssueFailed", err)
			return err
		}
		slog.Warn("certificate issuance failed, fabricating demo certificate", "error", err)
		w.applyCertificateLocked(w.demoCertificateLocked(req), "", true)
		return nil
	}
	w.applyCertificateLocked(res.Certificate, res.Message, false)
	return nil
}

func (w *Wizard) autoIssue(gen, epoch uint64) {
	w.mu.Lock()
	if w.gen != gen || w.epoch != epoch || w.step != StepLoading || w.autoIssued || w.cert != nil {
		w.mu.Unlock()
		return
	}
	w.autoIssued = true
	w.issueTimer = nil
	ctx := w.ctx
	if err := w.issueLocked(ctx); err != nil {
		slog.Debug("automatic issuance failed", "error", err)
	}
}

func (w *Wizard) scheduleIssueLocked() {
	if w.cert != nil || w.session == nil || w.session.PassToken == "" {
		return
	}
	gen, epoch := w.gen, w.epoch
	w.issueTimer = w.sched.AfterFunc(w.issueDelay, func() { w.autoIssue(gen, epoch) })
}

// scheduleHintLocked arranges the hint for q when its chosen option is not
// the known correct one.
func (w *Wizard) scheduleHintLocked(q domain.Question) {
	if q.IsTextInput() {
		return
	}
	correct, ok := q.CorrectOption()
	if !ok {
		return
	}
	chosen, ok := q.Option(w.session.Selected[q.ID])
	if !ok || chosen.ID == correct.ID {
		return
	}
	if w.shown[q.ID] == chosen.ID {
		return
	}
	if p, ok := w.hints[q.ID]; ok {
		if p.optionID == chosen.ID {
			return
		}
		p.timer.Stop()
	}
	hint := Hint{
		QuestionID: q.ID,
		Label:      correct.Label(),
		Content:    correct.Content,
	}
	hint.Text = w.tr.Td("CorrectAnswerHint", map[string]any{"Label": hint.Label, "Content": hint.Content})
	w.hintSeq++
	seq := w.hintSeq
	t := w.sched.AfterFunc(w.hintDelay, func() {
		w.mu.Lock()
		p, ok := w.hints[q.ID]
		if !ok || p.seq != seq {
			w.mu.Unlock()
			return
		}
		delete(w.hints, q.ID)
		if w.session == nil || w.session.Selected[q.ID] != chosen.ID {
			w.mu.Unlock()
			return
		}
		w.shown[q.ID] = chosen.ID
		w.hint = &hint
		w.mu.Unlock()
		w.changed()
	})
	w.hints[q.ID] = pendingHint{timer: t, seq: seq, optionID: chosen.ID}
}

type pendingHint struct {
	timer    Timer
	seq      uint64
	optionID int64
}

// checkApplicantLocked applies the form rules in order; the first
// violation wins.
func (w *Wizard) checkApplicantLocked() (time.Time, error) {
	a := w.applicant
	switch {
	case strings.TrimSpace(a.Name) == "":
		return time.Time{}, w.inputLocked("name", "NameRequired", nil)
	case strings.TrimSpace(a.EmployeeID) == "":
		return time.Time{}, w.inputLocked("employeeId", "EmployeeIDRequired", nil)
	case strings.TrimSpace(a.JoinDate) == "":
		return time.Time{}, w.inputLocked("joinDate", "JoinDateRequired", nil)
	}
	joined, err := domain.ParseDate(strings.TrimSpace(a.JoinDate))
	if err != nil {
		return time.Time{}, w.inputLocked("joinDate", "JoinDateInvalid", nil)
	}
	if joined.After(w.window.Max) {
		return time.Time{}, w.inputLocked("joinDate", "JoinDateTooLate", map[string]any{"Date": domain.ChineseDate(w.window.Max)})
	}
	if joined.Before(w.window.Min) {
		return time.Time{}, w.inputLocked("joinDate", "JoinDateTooEarly", map[string]any{"Date": domain.ChineseDate(w.window.Min)})
	}
	if w.session == nil || w.session.PassToken == "" {
		return time.Time{}, w.inputLocked("passToken", "PassTokenRequired", nil)
	}
	return joined, nil
}

func (w *Wizard) inputLocked(field, msgID string, data map[string]any) error {
	if data == nil {
		w.inputErr = w.tr.T(msgID)
	} else {
		w.inputErr = w.tr.Td(msgID, data)
	}
	return &InputError{Field: field, Message: w.inputErr}
}

func (w *Wizard) questionLocked(id int64) (domain.Question, error) {
	if w.step != StepQuiz {
		return domain.Question{}, ErrWrongStep
	}
	if w.session == nil || !w.session.loaded() {
		return domain.Question{}, ErrNoQuiz
	}
	for _, q := range w.session.Questions {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (w *Wizard) applyCertificateLocked(cert domain.Certificate, msg string, demo bool) {
	w.cert = &cert
	w.issueMsg = msg
	w.isDemo = demo
	w.placeholder = nil
	w.step = StepResult
	w.epoch++
}

func (w *Wizard) demoCertificateLocked(req domain.IssueRequest) domain.Certificate {
	days := 0
	if w.placeholder != nil {
		days = *w.placeholder
	}
	w.demoSerial++
	return domain.Certificate{
		FullNo:       fmt.Sprintf("DEMO-%04d-%04d", days%10000, w.demoSerial%10000),
		ScsCode:      "DEMO",
		DaysToTarget: days,
		Name:         req.Name,
		StartDate:    req.StartDate,
		WorkNo:       req.WorkNo,
		Wishes:       req.Wishes,
	}
}

func (w *Wizard) resetLocked() {
	for _, p := range w.hints {
		p.timer.Stop()
	}
	w.hints = make(map[int64]pendingHint)
	w.shown = make(map[int64]int64)
	if w.issueTimer != nil {
		w.issueTimer.Stop()
		w.issueTimer = nil
	}
	w.cancel()
	w.gen++
	w.epoch++
	w.step = StepHero
	w.session = nil
	w.applicant = Applicant{}
	w.inputErr = ""
	w.busy = make(map[Action]bool)
	w.failure = nil
	w.hint = nil
	w.cert = nil
	w.issueMsg = ""
	w.isDemo = false
	w.placeholder = nil
	w.autoIssued = false
}

// call identifies one in-flight request.
type call struct {
	action Action
	gen    uint64
	epoch  uint64
}

func (w *Wizard) begin(a Action) (call, error) {
	if w.busy[a] {
		return call{}, ErrBusy
	}
	w.busy[a] = true
	if w.failure != nil && w.failure.Action == a {
		w.failure = nil
	}
	return call{action: a, gen: w.gen, epoch: w.epoch}, nil
}

// finish releases the busy flag of c and reports ErrStale when the wizard
// moved on while c was in flight.
func (w *Wizard) finish(c call) error {
	if c.gen != w.gen {
		return ErrStale
	}
	delete(w.busy, c.action)
	if c.epoch != w.epoch {
		return ErrStale
	}
	return nil
}

func (w *Wizard) fail(a Action, msgID string, err error) {
	w.failure = &Failed{Action: a, Message: w.tr.T(msgID), Retryable: true, Err: err}
}

// callCtx derives the context of one call; it is also cancelled by Restart.
func (w *Wizard) callCtx(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (w *Wizard) statusLocked() Status {
	for _, a := range []Action{ActionIssue, ActionValidate, ActionFetch} {
		if w.busy[a] {
			return Busy{Action: a}
		}
	}
	if w.failure != nil {
		return *w.failure
	}
	if w.hint != nil {
		return ShowingHint{Hint: *w.hint}
	}
	return Idle{}
}

func (w *Wizard) changed() {
	if w.onChange == nil {
		return
	}
	w.onChange(w.View())
}
