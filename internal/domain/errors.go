package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizCodeMismatch is returned when answers target a different quiz.
	ErrQuizCodeMismatch = errors.New("quiz code does not match the active quiz")
	// ErrNoAnswers is returned when a validation request carries no answers.
	ErrNoAnswers = errors.New("no answers submitted")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrPassTokenInvalid covers unknown, expired or mismatched pass tokens.
	ErrPassTokenInvalid = errors.New("pass token invalid or expired")
	// ErrMissingFields is returned when a required issuance field is empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidDate indicates a date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
	// ErrJoinDateOutOfRange indicates a join date outside the accepted window.
	ErrJoinDateOutOfRange = errors.New("join date out of range")
	// ErrCertificateNotFound is returned by certificate lookups.
	ErrCertificateNotFound = errors.New("certificate not found")
	// ErrInvalidCredentials is returned by admin login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownColumn is returned when an export names an unsupported column.
	ErrUnknownColumn = errors.New("unknown export column")
	// ErrUnsupportedFormat is returned for export formats other than csv.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrWorkNoTaken is returned when an edit would duplicate an employee ID.
	ErrWorkNoTaken = errors.New("employee id already has a certificate")
)
