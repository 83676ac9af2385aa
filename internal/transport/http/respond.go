package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/i18n"
)

// envelope is the body shape of the public endpoints.
type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeData(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Message: message, Data: data})
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, envelope{Message: i18n.T(r.Context(), msgID)})
}

var errorTable = []struct {
	err    error
	status int
	msgID  string
}{
	{domain.ErrNoAnswers, http.StatusBadRequest, "NoAnswers"},
	{domain.ErrQuizCodeMismatch, http.StatusBadRequest, "QuizCodeMismatch"},
	{domain.ErrQuestionNotFound, http.StatusBadRequest, "QuestionNotFound"},
	{domain.ErrOptionNotFound, http.StatusBadRequest, "OptionNotFound"},
	{domain.ErrQuizNotFound, http.StatusNotFound, "QuizNotFound"},
	{domain.ErrMissingFields, http.StatusBadRequest, "MissingFields"},
	{domain.ErrInvalidDate, http.StatusBadRequest, "InvalidDate"},
	{domain.ErrJoinDateOutOfRange, http.StatusBadRequest, "JoinDateOutOfRange"},
	{domain.ErrPassTokenInvalid, http.StatusUnauthorized, "PassTokenInvalid"},
	{domain.ErrCertificateNotFound, http.StatusNotFound, "CertificateNotFound"},
	{domain.ErrWorkNoTaken, http.StatusConflict, "WorkNoTaken"},
	{domain.ErrUnknownColumn, http.StatusBadRequest, "UnknownColumn"},
	{domain.ErrUnsupportedFormat, http.StatusBadRequest, "UnsupportedFormat"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
}

// writeError maps domain errors to a status code and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			writeMessage(w, r, e.status, e.msgID)
			return
		}
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeMessage(w, r, http.StatusInternalServerError, "InternalError")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}
