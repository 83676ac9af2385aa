package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// Success messages of the issuance endpoint.
const (
	MessageIssued = "恭喜成功"
	MessageSaved  = "保存成功"
)

// CertificateRepository persists issued certificates.
type CertificateRepository interface {
	// NextSerial returns the next 1-based serial inside bucket.
	NextSerial(ctx context.Context, bucket string) (int, error)
	FindByWorkNo(ctx context.Context, workNo string) (domain.Certificate, error)
	FindByFullNo(ctx context.Context, fullNo string) (domain.Certificate, error)
	Create(ctx context.Context, cert domain.Certificate) error
	Update(ctx context.Context, cert domain.Certificate) error
	Delete(ctx context.Context, fullNo string) error
	// List returns the filtered page (newest first) and the total match count.
	List(ctx context.Context, filter domain.CertificateFilter) ([]domain.Certificate, int, error)
}

// IssueNotifier is told about every successful issuance.
type IssueNotifier interface {
	CertificateIssued(ctx context.Context, cert domain.Certificate, created bool)
}

// CertificateSettings configures CertificateService.
type CertificateSettings struct {
	ScsCode string
	// TargetDate is the anniversary day; zero means "today".
	TargetDate time.Time
	Window     domain.JoinWindow
}

// IssueResult is the outcome of an issuance call.
type IssueResult struct {
	Certificate domain.Certificate
	Message     string
	Created     bool
}

// CertificateService issues anniversary certificates, one per employee ID.
type CertificateService struct {
	certs    CertificateRepository
	tokens   PassTokenStore
	notifier IssueNotifier
	settings CertificateSettings
	now      func() time.Time
	sf       singleflight.Group
}

func NewCertificateService(certs CertificateRepository, tokens PassTokenStore, notifier IssueNotifier, settings CertificateSettings) *CertificateService {
	if settings.ScsCode == "" {
		settings.ScsCode = "SCS01"
	}
	if settings.Window.Min.IsZero() && settings.Window.Max.IsZero() {
		settings.Window = domain.DefaultJoinWindow()
	}
	return &CertificateService{
		certs:    certs,
		tokens:   tokens,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
	}
}

// NewCertificateServiceWithClock is test-only for deterministic timestamps.
func NewCertificateServiceWithClock(certs CertificateRepository, tokens PassTokenStore, notifier IssueNotifier, settings CertificateSettings, now func() time.Time) *CertificateService {
	s := NewCertificateService(certs, tokens, notifier, settings)
	s.now = now
	return s
}

// Window is the accepted join date range.
func (s *CertificateService) Window() domain.JoinWindow {
	return s.settings.Window
}

// DaysToTarget counts days from start to the anniversary target, never negative.
func (s *CertificateService) DaysToTarget(start time.Time) int {
	return daysToTarget(start, s.settings.TargetDate, s.now())
}

func daysToTarget(start, target, now time.Time) int {
	if target.IsZero() {
		target = now.UTC()
	}
	days := domain.DaysBetween(start, target)
	if days < 0 {
		return 0
	}
	return days
}

// Issue creates the certificate for req.WorkNo or refreshes the existing one.
// Concurrent calls for the same employee collapse into one write.
func (s *CertificateService) Issue(ctx context.Context, req domain.IssueRequest) (IssueResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.WorkNo = strings.TrimSpace(req.WorkNo)
	req.StartDate = strings.TrimSpace(req.StartDate)
	req.Wishes = strings.TrimSpace(req.Wishes)
	req.PassToken = strings.TrimSpace(req.PassToken)
	if req.Name == "" || req.WorkNo == "" || req.StartDate == "" || req.PassToken == "" {
		return IssueResult{}, domain.ErrMissingFields
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return IssueResult{}, err
	}
	if err := s.settings.Window.Check(start); err != nil {
		return IssueResult{}, err
	}

	token, err := s.tokens.Lookup(ctx, req.PassToken)
	if err != nil {
		return IssueResult{}, err
	}
	if token.Expired(s.now()) {
		return IssueResult{}, domain.ErrPassTokenInvalid
	}

	v, err, shared := s.sf.Do(req.WorkNo, func() (interface{}, error) {
		return s.upsert(ctx, req, start)
	})
	if err != nil {
		return IssueResult{}, err
	}
	res := v.(IssueResult)
	if !shared {
		slog.Info("certificate issued", "fullNo", res.Certificate.FullNo, "workNo", res.Certificate.WorkNo, "created", res.Created)
	}
	return res, nil
}

func (s *CertificateService) upsert(ctx context.Context, req domain.IssueRequest, start time.Time) (IssueResult, error) {
	now := s.now()
	days := s.DaysToTarget(start)

	existing, err := s.certs.FindByWorkNo(ctx, req.WorkNo)
	switch {
	case err == nil:
		existing.Name = req.Name
		existing.StartDate = domain.FormatDate(start)
		existing.DaysToTarget = days
		if req.Wishes != "" {
			existing.Wishes = req.Wishes
		}
		existing.UpdatedAt = now
		if err := s.certs.Update(ctx, existing); err != nil {
			return IssueResult{}, fmt.Errorf("update certificate: %w", err)
		}
		s.notify(ctx, existing, false)
		return IssueResult{Certificate: existing, Message: MessageSaved}, nil
	case !errors.Is(err, domain.ErrCertificateNotFound):
		return IssueResult{}, fmt.Errorf("find certificate: %w", err)
	}

	bucket := fmt.Sprintf("%04d", days%10000)
	serial, err := s.certs.NextSerial(ctx, bucket)
	if err != nil {
		return IssueResult{}, fmt.Errorf("next serial: %w", err)
	}
	cert := domain.Certificate{
		FullNo:       FormatFullNo(s.settings.ScsCode, days, serial),
		ScsCode:      s.settings.ScsCode,
		DaysToTarget: days,
		Name:         req.Name,
		StartDate:    domain.FormatDate(start),
		WorkNo:       req.WorkNo,
		Wishes:       req.Wishes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.certs.Create(ctx, cert); err != nil {
		return IssueResult{}, fmt.Errorf("create certificate: %w", err)
	}
	s.notify(ctx, cert, true)
	return IssueResult{Certificate: cert, Message: MessageIssued, Created: true}, nil
}

func (s *CertificateService) notify(ctx context.Context, cert domain.Certificate, created bool) {
	if s.notifier != nil {
		s.notifier.CertificateIssued(ctx, cert, created)
	}
}

// FormatFullNo renders the certificate number, e.g. SCS01-2922-0001.
func FormatFullNo(scsCode string, days, serial int) string {
	return fmt.Sprintf("%s-%04d-%04d", scsCode, days%10000, serial%10000)
}
