package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"anniv-certificate-service/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestCertificate(t *testing.T, s *Store, fullNo, name, workNo string, created time.Time) domain.Certificate {
	t.Helper()
	c := domain.Certificate{
		FullNo:       fullNo,
		ScsCode:      "SCS01",
		DaysToTarget: 2922,
		Name:         name,
		StartDate:    "2017-09-06",
		WorkNo:       workNo,
		Wishes:       "生日快乐",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if err := s.Create(context.Background(), c); err != nil {
		t.Fatalf("insertTestCertificate: %v", err)
	}
	return c
}

func TestCertificateCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 9, 30, 0, 0, time.UTC)

	insertTestCertificate(t, s, "SCS01-2922-0001", "张三", "E001", base)
	insertTestCertificate(t, s, "SCS01-2922-0002", "李四", "E002", base.Add(time.Minute))

	got, err := s.FindByWorkNo(ctx, "E001")
	if err != nil {
		t.Fatalf("FindByWorkNo: %v", err)
	}
	if got.Name != "张三" || !got.CreatedAt.Equal(base) {
		t.Fatalf("unexpected certificate %+v", got)
	}

	dup := got
	dup.FullNo = "SCS01-2922-0099"
	if err := s.Create(ctx, dup); !errors.Is(err, domain.ErrWorkNoTaken) {
		t.Fatalf("expected ErrWorkNoTaken, got %v", err)
	}

	got.Name = "张三丰"
	got.UpdatedAt = base.Add(time.Hour)
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	reloaded, _ := s.FindByFullNo(ctx, got.FullNo)
	if reloaded.Name != "张三丰" || !reloaded.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("update not persisted: %+v", reloaded)
	}

	if err := s.Delete(ctx, got.FullNo); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.FindByFullNo(ctx, got.FullNo); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Update(ctx, got); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected not found on update of deleted row, got %v", err)
	}
}

func TestListFiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	insertTestCertificate(t, s, "SCS01-2922-0001", "Alice", "E001", base)
	insertTestCertificate(t, s, "SCS01-1000-0001", "Bob", "E002", base.Add(time.Hour))
	insertTestCertificate(t, s, "SCS01-0500-0001", "Carol", "X003", base.Add(2*time.Hour))

	all, total, err := s.List(ctx, domain.CertificateFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].Name != "Carol" {
		t.Fatalf("expected newest first, got %d %+v", total, all)
	}

	page, total, _ := s.List(ctx, domain.CertificateFilter{Query: "e00", Limit: 1, Offset: 1})
	if total != 2 || len(page) != 1 || page[0].Name != "Alice" {
		t.Fatalf("unexpected filtered page %d %+v", total, page)
	}
}

func TestNextSerialPerBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := s.NextSerial(ctx, "2922")
		if err != nil {
			t.Fatalf("NextSerial: %v", err)
		}
		if got != want {
			t.Fatalf("serial = %d, want %d", got, want)
		}
	}
	if got, _ := s.NextSerial(ctx, "0001"); got != 1 {
		t.Fatalf("new bucket should start at 1, got %d", got)
	}
}

func TestAttemptsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	a := domain.Attempt{
		ID: "a1", QuizCode: "QZ", CorrectCnt: 1, QuestionCnt: 2, CreatedAt: first,
		Items: []domain.ValidationItem{{QuestionID: 1, Correct: true}, {QuestionID: 2}},
	}
	if err := s.SaveAttempt(ctx, a); err != nil {
		t.Fatalf("SaveAttempt: %v", err)
	}
	a.CorrectCnt = 2
	a.Items[1].Correct = true
	a.CreatedAt = first.Add(time.Hour)
	if err := s.SaveAttempt(ctx, a); err != nil {
		t.Fatalf("SaveAttempt again: %v", err)
	}

	attempts, err := s.ListAttempts(ctx, "QZ")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].CorrectCnt != 2 || !attempts[0].Items[1].Correct || !attempts[0].CreatedAt.Equal(first) {
		t.Fatalf("unexpected attempt %+v", attempts[0])
	}
}
