package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"anniv-certificate-service/internal/domain"
)

// CertificateStore keeps certificates and quiz attempts in process memory.
// It implements app.CertificateRepository and app.AttemptRepository.
type CertificateStore struct {
	mu       sync.RWMutex
	byFullNo map[string]domain.Certificate
	byWorkNo map[string]string
	serials  map[string]int
	attempts map[string]domain.Attempt
}

func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		byFullNo: make(map[string]domain.Certificate),
		byWorkNo: make(map[string]string),
		serials:  make(map[string]int),
		attempts: make(map[string]domain.Attempt),
	}
}

func (s *CertificateStore) NextSerial(_ context.Context, bucket string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serials[bucket]++
	return s.serials[bucket], nil
}

func (s *CertificateStore) FindByWorkNo(_ context.Context, workNo string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fullNo, ok := s.byWorkNo[workNo]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return s.byFullNo[fullNo], nil
}

func (s *CertificateStore) FindByFullNo(_ context.Context, fullNo string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byFullNo[fullNo]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return cert, nil
}

func (s *CertificateStore) Create(_ context.Context, cert domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFullNo[cert.FullNo]; ok {
		return fmt.Errorf("certificate %s already exists", cert.FullNo)
	}
	if _, ok := s.byWorkNo[cert.WorkNo]; ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkNoTaken, cert.WorkNo)
	}
	s.byFullNo[cert.FullNo] = cert
	s.byWorkNo[cert.WorkNo] = cert.FullNo
	return nil
}

func (s *CertificateStore) Update(_ context.Context, cert domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byFullNo[cert.FullNo]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	if old.WorkNo != cert.WorkNo {
		if _, taken := s.byWorkNo[cert.WorkNo]; taken {
			return fmt.Errorf("%w: %s", domain.ErrWorkNoTaken, cert.WorkNo)
		}
		delete(s.byWorkNo, old.WorkNo)
		s.byWorkNo[cert.WorkNo] = cert.FullNo
	}
	s.byFullNo[cert.FullNo] = cert
	return nil
}

func (s *CertificateStore) Delete(_ context.Context, fullNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byFullNo[fullNo]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	delete(s.byFullNo, fullNo)
	delete(s.byWorkNo, cert.WorkNo)
	return nil
}

func (s *CertificateStore) List(_ context.Context, filter domain.CertificateFilter) ([]domain.Certificate, int, error) {
	s.mu.RLock()
	matched := make([]domain.Certificate, 0, len(s.byFullNo))
	q := strings.ToLower(filter.Query)
	for _, cert := range s.byFullNo {
		if q == "" || matches(cert, q) {
			matched = append(matched, cert)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].FullNo > matched[j].FullNo
	})

	total := len(matched)
	offset := max(filter.Offset, 0)
	if offset >= total {
		return []domain.Certificate{}, total, nil
	}
	matched = matched[offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *CertificateStore) SaveAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.attempts[attempt.ID]; ok {
		attempt.CreatedAt = prev.CreatedAt
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *CertificateStore) ListAttempts(_ context.Context, quizCode string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		if a.QuizCode == quizCode {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func matches(cert domain.Certificate, q string) bool {
	return strings.Contains(strings.ToLower(cert.Name), q) ||
		strings.Contains(strings.ToLower(cert.WorkNo), q) ||
		strings.Contains(strings.ToLower(cert.FullNo), q)
}
