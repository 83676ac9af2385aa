package http

import (
	"context"
	"net/http"

	"anniv-certificate-service/internal/app"
	"anniv-certificate-service/internal/domain"
)

// QuizUseCases is the quiz side of the public API.
type QuizUseCases interface {
	GetActiveQuiz(ctx context.Context) (domain.Quiz, error)
	Validate(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error)
}

// CertificateUseCases is the issuance side of the public API.
type CertificateUseCases interface {
	Issue(ctx context.Context, req domain.IssueRequest) (app.IssueResult, error)
}

// PublicHandler serves the three endpoints the visitor wizard talks to.
type PublicHandler struct {
	quizzes QuizUseCases
	certs   CertificateUseCases
}

func NewPublicHandler(quizzes QuizUseCases, certs CertificateUseCases) *PublicHandler {
	return &PublicHandler{quizzes: quizzes, certs: certs}
}

// GetQuiz returns the active question set.
func (h *PublicHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizzes.GetActiveQuiz(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, "ok", quiz)
}

// Validate scores a full answer set and hands out a pass token.
func (h *PublicHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidationRequest
	if err := decodeJSON(r, &req); err != nil || req.Answers == nil || req.QuizCode == "" {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	res, err := h.quizzes.Validate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, "ok", res)
}

// IssueCertificate creates or refreshes the visitor's certificate.
func (h *PublicHandler) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	res, err := h.certs.Issue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, res.Message, res.Certificate)
}
