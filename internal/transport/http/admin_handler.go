package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"anniv-certificate-service/internal/app"
	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/i18n"

	"github.com/go-chi/chi/v5"
)

// AdminUseCases backs the admin console endpoints.
type AdminUseCases interface {
	List(ctx context.Context, page, size int, q string) (domain.CertificatePage, error)
	Update(ctx context.Context, fullNo string, patch domain.CertificatePatch) (domain.Certificate, error)
	Delete(ctx context.Context, fullNo string) error
	Export(ctx context.Context, w io.Writer, req domain.ExportRequest, labels app.Labeler) error
	Stats(ctx context.Context) (domain.DashboardStats, error)
	Trend(ctx context.Context, days int) (domain.Trend, error)
	SurveyStats(ctx context.Context) (domain.SurveyStats, error)
	Subscribe(ctx context.Context) (<-chan domain.FeedEvent, func(), error)
}

type AdminHandler struct {
	admin AdminUseCases
	now   func() time.Time
}

func NewAdminHandler(admin AdminUseCases) *AdminHandler {
	return &AdminHandler{admin: admin, now: time.Now}
}

// ListCertificates serves GET /admin/certificates?page=&size=&q=.
func (h *AdminHandler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	res, err := h.admin.List(r.Context(), page, size, q.Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateCertificate serves PUT /admin/certificates/{fullNo}.
func (h *AdminHandler) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
	var patch domain.CertificatePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	cert, err := h.admin.Update(r.Context(), chi.URLParam(r, "fullNo"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

// DeleteCertificate serves DELETE /admin/certificates/{fullNo}.
func (h *AdminHandler) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Delete(r.Context(), chi.URLParam(r, "fullNo")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportCertificates serves POST /admin/certificates/export as a CSV download.
func (h *AdminHandler) ExportCertificates(w http.ResponseWriter, r *http.Request) {
	var req domain.ExportRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	// buffer so validation errors can still become a JSON response
	var buf bytes.Buffer
	if err := h.admin.Export(r.Context(), &buf, req, contextLabeler{r.Context()}); err != nil {
		writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("certificates_%s.csv", h.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Stats serves GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Trend serves GET /admin/trend?days=.
func (h *AdminHandler) Trend(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	trend, err := h.admin.Trend(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// SurveyStats serves GET /admin/survey-stats.
func (h *AdminHandler) SurveyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.SurveyStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// contextLabeler translates export headers with the request's localizer.
type contextLabeler struct {
	ctx context.Context
}

func (l contextLabeler) T(msgID string) string {
	return i18n.T(l.ctx, msgID)
}
