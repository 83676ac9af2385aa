package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"
)

// Feed event types.
const (
	EventSnapshot = "snapshot"
	EventIssued   = "certificate.issued"
	EventUpdated  = "certificate.updated"
	EventDeleted  = "certificate.deleted"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxPage         = math.MaxInt32 / maxPageSize
	maxTrendDays    = 366
	csvTimeLayout   = "2006-01-02 15:04:05"
	utf8BOM         = "\ufeff"
)

// ExportColumns lists the export column keys in default order.
var ExportColumns = []string{"fullNo", "name", "workNo", "startDate", "workDays", "wishes", "createdAt"}

var exportColumnLabels = map[string]string{
	"fullNo":    "ColumnFullNo",
	"name":      "ColumnName",
	"workNo":    "ColumnWorkNo",
	"startDate": "ColumnStartDate",
	"workDays":  "ColumnWorkDays",
	"wishes":    "ColumnWishes",
	"createdAt": "ColumnCreatedAt",
}

// Labeler resolves column header message IDs.
type Labeler interface {
	T(msgID string) string
}

// AdminSettings configures AdminService.
type AdminSettings struct {
	QuizCode   string
	TargetDate time.Time
	Window     domain.JoinWindow
	// Location decides where "today" starts; nil means time.Local.
	Location *time.Location
}

// AdminService backs the admin console: listing, edits, export and statistics.
type AdminService struct {
	certs    CertificateRepository
	attempts AttemptRepository
	quizzes  QuizRepository
	feed     *Feed
	settings AdminSettings
	now      func() time.Time
}

func NewAdminService(certs CertificateRepository, attempts AttemptRepository, quizzes QuizRepository, feed *Feed, settings AdminSettings) *AdminService {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.Window.Min.IsZero() && settings.Window.Max.IsZero() {
		settings.Window = domain.DefaultJoinWindow()
	}
	if feed == nil {
		feed = NewFeed()
	}
	return &AdminService{
		certs:    certs,
		attempts: attempts,
		quizzes:  quizzes,
		feed:     feed,
		settings: settings,
		now:      time.Now,
	}
}

// NewAdminServiceWithClock is test-only for deterministic timestamps.
func NewAdminServiceWithClock(certs CertificateRepository, attempts AttemptRepository, quizzes QuizRepository, feed *Feed, settings AdminSettings, now func() time.Time) *AdminService {
	s := NewAdminService(certs, attempts, quizzes, feed, settings)
	s.now = now
	return s
}

// List returns one page of certificates matching q (name, employee ID or number).
func (s *AdminService) List(ctx context.Context, page, size int, q string) (domain.CertificatePage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page > maxPage {
		page = maxPage
	}
	items, total, err := s.certs.List(ctx, domain.CertificateFilter{
		Query:  strings.TrimSpace(q),
		Offset: (page - 1) * size,
		Limit:  size,
	})
	if err != nil {
		return domain.CertificatePage{}, fmt.Errorf("list certificates: %w", err)
	}
	if items == nil {
		items = []domain.Certificate{}
	}
	return domain.CertificatePage{Items: items, Total: total, Page: page, Size: size}, nil
}

// Update applies an admin edit. The certificate number never changes.
func (s *AdminService) Update(ctx context.Context, fullNo string, patch domain.CertificatePatch) (domain.Certificate, error) {
	cert, err := s.certs.FindByFullNo(ctx, fullNo)
	if err != nil {
		return domain.Certificate{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Certificate{}, domain.ErrMissingFields
		}
		cert.Name = name
	}
	if patch.WorkNo != nil {
		workNo := strings.TrimSpace(*patch.WorkNo)
		if workNo == "" {
			return domain.Certificate{}, domain.ErrMissingFields
		}
		if workNo != cert.WorkNo {
			other, err := s.certs.FindByWorkNo(ctx, workNo)
			switch {
			case err == nil && other.FullNo != cert.FullNo:
				return domain.Certificate{}, domain.ErrWorkNoTaken
			case err != nil && !errors.Is(err, domain.ErrCertificateNotFound):
				return domain.Certificate{}, fmt.Errorf("find certificate: %w", err)
			}
		}
		cert.WorkNo = workNo
	}
	if patch.StartDate != nil {
		start, err := domain.ParseDate(strings.TrimSpace(*patch.StartDate))
		if err != nil {
			return domain.Certificate{}, err
		}
		if err := s.settings.Window.Check(start); err != nil {
			return domain.Certificate{}, err
		}
		cert.StartDate = domain.FormatDate(start)
		cert.DaysToTarget = daysToTarget(start, s.settings.TargetDate, s.now())
	}
	if patch.Wishes != nil {
		cert.Wishes = strings.TrimSpace(*patch.Wishes)
	}
	cert.UpdatedAt = s.now()
	if err := s.certs.Update(ctx, cert); err != nil {
		return domain.Certificate{}, fmt.Errorf("update certificate: %w", err)
	}
	s.publish(ctx, EventUpdated, &cert)
	return cert, nil
}

// Delete removes a certificate.
func (s *AdminService) Delete(ctx context.Context, fullNo string) error {
	cert, err := s.certs.FindByFullNo(ctx, fullNo)
	if err != nil {
		return err
	}
	if err := s.certs.Delete(ctx, fullNo); err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	s.publish(ctx, EventDeleted, &cert)
	return nil
}

// Export writes the selected certificates as CSV with a UTF-8 BOM and
// localized headers.
func (s *AdminService) Export(ctx context.Context, w io.Writer, req domain.ExportRequest, labels Labeler) error {
	if req.Format != "" && !strings.EqualFold(req.Format, "csv") {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, req.Format)
	}
	columns := req.Columns
	if len(columns) == 0 {
		columns = ExportColumns
	}
	header := make([]string, 0, len(columns))
	for _, col := range columns {
		id, ok := exportColumnLabels[col]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownColumn, col)
		}
		header = append(header, labels.T(id))
	}

	limit := req.Limit
	if limit < 0 {
		limit = 0
	}
	certs, _, err := s.certs.List(ctx, domain.CertificateFilter{Query: strings.TrimSpace(req.Query), Limit: limit})
	if err != nil {
		return fmt.Errorf("list certificates: %w", err)
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, cert := range certs {
		row := make([]string, 0, len(columns))
		for _, col := range columns {
			row = append(row, s.exportValue(cert, col))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *AdminService) exportValue(cert domain.Certificate, col string) string {
	switch col {
	case "fullNo":
		return cert.FullNo
	case "name":
		return cert.Name
	case "workNo":
		return cert.WorkNo
	case "startDate":
		return cert.StartDate
	case "workDays":
		return strconv.Itoa(cert.DaysToTarget)
	case "wishes":
		return cert.Wishes
	case "createdAt":
		return cert.CreatedAt.In(s.settings.Location).Format(csvTimeLayout)
	}
	return ""
}

// Stats summarizes every issued certificate.
func (s *AdminService) Stats(ctx context.Context) (domain.DashboardStats, error) {
	certs, total, err := s.certs.List(ctx, domain.CertificateFilter{})
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("list certificates: %w", err)
	}
	today := s.day(s.now())
	stats := domain.DashboardStats{TotalCertificates: total}
	days := 0
	for _, cert := range certs {
		if s.day(cert.CreatedAt).Equal(today) {
			stats.TodaySubmissions++
		}
		if strings.TrimSpace(cert.Wishes) != "" {
			stats.ValidBlessings++
		}
		days += cert.DaysToTarget
	}
	if len(certs) > 0 {
		stats.AverageWorkYears = round1(float64(days) / float64(len(certs)) / 365)
	}
	return stats, nil
}

// Trend counts issued certificates per day for the last n days, oldest first.
func (s *AdminService) Trend(ctx context.Context, n int) (domain.Trend, error) {
	if n < 1 {
		n = 7
	}
	if n > maxTrendDays {
		n = maxTrendDays
	}
	certs, _, err := s.certs.List(ctx, domain.CertificateFilter{})
	if err != nil {
		return domain.Trend{}, fmt.Errorf("list certificates: %w", err)
	}
	today := s.day(s.now())
	first := today.AddDate(0, 0, -(n - 1))
	trend := domain.Trend{Labels: make([]string, n), Values: make([]int, n)}
	for i := 0; i < n; i++ {
		trend.Labels[i] = first.AddDate(0, 0, i).Format("01-02")
	}
	for _, cert := range certs {
		d := s.day(cert.CreatedAt)
		if d.Before(first) || d.After(today) {
			continue
		}
		idx := int(math.Round(d.Sub(first).Hours() / 24))
		if idx >= 0 && idx < n {
			trend.Values[idx]++
		}
	}
	return trend, nil
}

// SurveyStats aggregates the recorded quiz attempts per question.
func (s *AdminService) SurveyStats(ctx context.Context) (domain.SurveyStats, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, s.settings.QuizCode)
	if err != nil {
		return domain.SurveyStats{}, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, s.settings.QuizCode)
	if err != nil {
		return domain.SurveyStats{}, fmt.Errorf("list attempts: %w", err)
	}

	type tally struct{ total, correct int }
	perQuestion := make(map[int64]*tally, len(quiz.Questions))
	for _, q := range quiz.Questions {
		perQuestion[q.ID] = &tally{}
	}

	today := s.day(s.now())
	stats := domain.SurveyStats{TotalParticipants: len(attempts)}
	scoreSum := 0.0
	for _, a := range attempts {
		if a.Passed() {
			stats.PassedParticipants++
		}
		if s.day(a.CreatedAt).Equal(today) {
			stats.TodayAnswers++
		}
		if a.QuestionCnt > 0 {
			scoreSum += float64(a.CorrectCnt) / float64(a.QuestionCnt) * 100
		}
		for _, item := range a.Items {
			t, ok := perQuestion[item.QuestionID]
			if !ok {
				continue
			}
			t.total++
			if item.Correct {
				t.correct++
			}
		}
	}
	if len(attempts) > 0 {
		stats.PassRate = percent(stats.PassedParticipants, len(attempts))
		stats.AverageScore = round1(scoreSum / float64(len(attempts)))
	}

	stats.Questions = make([]domain.QuestionStats, 0, len(quiz.Questions))
	for _, q := range sortedQuestions(quiz.Questions) {
		t := perQuestion[q.ID]
		stats.Questions = append(stats.Questions, domain.QuestionStats{
			ID:             q.ID,
			Question:       q.Content,
			TotalAnswers:   t.total,
			CorrectAnswers: t.correct,
			CorrectRate:    percent(t.correct, t.total),
			IsSimple:       q.IsTextInput(),
		})
	}
	return stats, nil
}

// Subscribe attaches a live feed listener; the first event is a stats snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AdminService) Subscribe(ctx context.Context) (<-chan domain.FeedEvent, func(), error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.subscribe(domain.FeedEvent{Type: EventSnapshot, Stats: stats, At: s.now()})
	return ch, cancel, nil
}

// CertificateIssued implements IssueNotifier.
func (s *AdminService) CertificateIssued(ctx context.Context, cert domain.Certificate, created bool) {
	typ := EventUpdated
	if created {
		typ = EventIssued
	}
	s.publish(ctx, typ, &cert)
}

func (s *AdminService) publish(ctx context.Context, typ string, cert *domain.Certificate) {
	if s.feed.Subscribers() == 0 {
		return
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		slog.Warn("feed stats unavailable", "error", err)
	}
	s.feed.Publish(domain.FeedEvent{Type: typ, Certificate: cert, Stats: stats, At: s.now()})
}

func (s *AdminService) day(t time.Time) time.Time {
	t = t.In(s.settings.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.settings.Location)
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
