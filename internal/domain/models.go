package domain

import (
	"strings"
	"time"
)

// TextInputMarker flags a single-option question as an open (free text) question.
const TextInputMarker = "[填空]"

// DateLayout is the wire format for join dates.
const DateLayout = "2006-01-02"

// Option represents a possible answer for a question.
// IfCorrect is only set for questions whose correct answer is known.
type Option struct {
	ID        int64  `json:"id" yaml:"id"`
	IdxNo     int    `json:"idxNo" yaml:"idxNo"`
	Content   string `json:"content" yaml:"content"`
	IfCorrect *bool  `json:"ifCorrect,omitempty" yaml:"ifCorrect,omitempty"`
}

// Label returns the A/B/C/D letter derived from the 1-based display index.
func (o Option) Label() string {
	if o.IdxNo < 1 || o.IdxNo > 26 {
		return ""
	}
	return string(rune('A' + o.IdxNo - 1))
}

// Question models a quiz question; IdxNo is the 1-based display order.
type Question struct {
	ID      int64    `json:"id" yaml:"id"`
	IdxNo   int      `json:"idxNo" yaml:"idxNo"`
	Content string   `json:"content" yaml:"content"`
	Options []Option `json:"options" yaml:"options"`
}

// IsTextInput reports whether the question expects free text instead of a choice.
func (q Question) IsTextInput() bool {
	if len(q.Options) == 0 {
		return true
	}
	return len(q.Options) == 1 && strings.Contains(q.Options[0].Content, TextInputMarker)
}

// CorrectOption returns the option flagged as correct, if any.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.IfCorrect != nil && *opt.IfCorrect {
			return opt, true
		}
	}
	return Option{}, false
}

// Option looks up an option by id.
func (q Question) Option(id int64) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is a question set identified by its quiz code.
type Quiz struct {
	Code      string     `json:"quizCode" yaml:"quizCode"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question looks up a question by id.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// AnswerSubmission is one answer sent for validation. OptionID is zero for
// free text answers.
type AnswerSubmission struct {
	QuestionID int64  `json:"questionId"`
	OptionID   int64  `json:"optionId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// ValidationRequest is the body of a quiz validation call.
type ValidationRequest struct {
	Answers   []AnswerSubmission `json:"answers"`
	QuizCode  string             `json:"quizCode"`
	AttemptID string             `json:"attemptId,omitempty"`
}

// ValidationItem is the per-question outcome of a validation call.
type ValidationItem struct {
	QuestionID int64 `json:"questionId"`
	Correct    bool  `json:"correct"`
}

// ValidationResult is returned by quiz validation. The pass token is issued
// whether or not every answer is correct.
type ValidationResult struct {
	AllCorrect bool             `json:"allCorrect"`
	Items      []ValidationItem `json:"items"`
	PassToken  string           `json:"passToken"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

// PassToken gates certificate issuance.
type PassToken struct {
	Token      string    `json:"token"`
	QuizCode   string    `json:"quizCode"`
	AttemptID  string    `json:"attemptId"`
	AllCorrect bool      `json:"allCorrect"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry at now.
func (p PassToken) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Attempt is the answer record of one visitor, kept for survey statistics.
type Attempt struct {
	ID          string           `json:"id"`
	QuizCode    string           `json:"quizCode"`
	Items       []ValidationItem `json:"items"`
	CorrectCnt  int              `json:"correctCount"`
	QuestionCnt int              `json:"questionCount"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Passed reports whether every question of the attempt was answered correctly.
func (a Attempt) Passed() bool {
	return a.QuestionCnt > 0 && a.CorrectCnt == a.QuestionCnt
}

// IssueRequest is the body of a certificate issuance call.
type IssueRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	WorkNo    string `json:"workNo"`
	Wishes    string `json:"wishes,omitempty"`
	PassToken string `json:"passToken"`
}

// Certificate is the durable record produced by issuance.
type Certificate struct {
	FullNo       string    `json:"fullNo"`
	ScsCode      string    `json:"scsCode"`
	DaysToTarget int       `json:"daysToTarget"`
	Name         string    `json:"name"`
	StartDate    string    `json:"startDate"`
	WorkNo       string    `json:"workNo"`
	Wishes       string    `json:"wishes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CertificatePatch carries admin edits; nil fields are left untouched.
type CertificatePatch struct {
	Name      *string `json:"name,omitempty"`
	WorkNo    *string `json:"workNo,omitempty"`
	StartDate *string `json:"startDate,omitempty"`
	Wishes    *string `json:"wishes,omitempty"`
}

// CertificateFilter selects certificates for listing and export.
// Limit 0 means no limit.
type CertificateFilter struct {
	Query  string
	Offset int
	Limit  int
}

// CertificatePage is one page of the admin certificate listing.
type CertificatePage struct {
	Items []Certificate `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// DashboardStats summarizes issued certificates.
type DashboardStats struct {
	TotalCertificates int     `json:"totalCertificates"`
	TodaySubmissions  int     `json:"todaySubmissions"`
	AverageWorkYears  float64 `json:"averageWorkYears"`
	ValidBlessings    int     `json:"validBlessings"`
}

// Trend is a per-day series of issued certificates.
type Trend struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// QuestionStats aggregates answers of a single question.
type QuestionStats struct {
	ID             int64  `json:"id"`
	Question       string `json:"question"`
	TotalAnswers   int    `json:"totalAnswers"`
	CorrectAnswers int    `json:"correctAnswers"`
	CorrectRate    int    `json:"correctRate"`
	IsSimple       bool   `json:"isSimple"`
}

// SurveyStats aggregates quiz attempts.
type SurveyStats struct {
	TotalParticipants  int             `json:"totalParticipants"`
	PassedParticipants int             `json:"passedParticipants"`
	PassRate           int             `json:"passRate"`
	AverageScore       float64         `json:"averageScore"`
	TodayAnswers       int             `json:"todayAnswers"`
	Questions          []QuestionStats `json:"questions"`
}

// FeedEvent is pushed to admin dashboards when certificates change.
type FeedEvent struct {
	Type        string         `json:"type"`
	Certificate *Certificate   `json:"certificate,omitempty"`
	Stats       DashboardStats `json:"stats"`
	At          time.Time      `json:"at"`
}

// ExportRequest selects columns and rows of a certificate export.
// Empty Columns exports every column.
type ExportRequest struct {
	Columns []string `json:"columns"`
	Query   string   `json:"q"`
	Limit   int      `json:"limit"`
	Format  string   `json:"format"`
}

// LoginResult is returned by admin login.
type LoginResult struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expiresAt"`
}
