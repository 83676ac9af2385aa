package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"anniv-certificate-service/internal/domain"
)

func TestCertificateStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewCertificateStore()
	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	for i, c := range []domain.Certificate{
		{FullNo: "SCS01-2922-0001", Name: "张三", WorkNo: "E001", CreatedAt: base},
		{FullNo: "SCS01-1000-0001", Name: "李四", WorkNo: "E002", CreatedAt: base.Add(time.Hour)},
		{FullNo: "SCS01-0500-0001", Name: "王五", WorkNo: "E003", CreatedAt: base.Add(2 * time.Hour)},
	} {
		if err := store.Create(ctx, c); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if err := store.Create(ctx, domain.Certificate{FullNo: "X", WorkNo: "E001"}); !errors.Is(err, domain.ErrWorkNoTaken) {
		t.Fatalf("expected duplicate work number rejected, got %v", err)
	}

	got, err := store.FindByWorkNo(ctx, "E002")
	if err != nil || got.Name != "李四" {
		t.Fatalf("find by work no: %+v %v", got, err)
	}

	page, total, err := store.List(ctx, domain.CertificateFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(page) != 2 || page[0].WorkNo != "E003" {
		t.Fatalf("expected newest first page of 2/3, got %d %+v", total, page)
	}

	page, total, _ = store.List(ctx, domain.CertificateFilter{Query: "e00", Offset: 2})
	if total != 3 || len(page) != 1 || page[0].WorkNo != "E001" {
		t.Fatalf("unexpected offset page %d %+v", total, page)
	}

	got.WorkNo = "E009"
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.FindByWorkNo(ctx, "E002"); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected old work number released, got %v", err)
	}

	if err := store.Delete(ctx, got.FullNo); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, got.FullNo); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCertificateStoreNegativeOffset(t *testing.T) {
	ctx := context.Background()
	store := NewCertificateStore()
	if err := store.Create(ctx, domain.Certificate{FullNo: "SCS01-2922-0001", WorkNo: "E001"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	items, total, err := store.List(ctx, domain.CertificateFilter{Offset: -360, Limit: 10})
	if err != nil || total != 1 || len(items) != 1 {
		t.Fatalf("expected negative offset treated as zero, got %v %d %v", items, total, err)
	}
}

func TestCertificateStoreSerialsPerBucket(t *testing.T) {
	ctx := context.Background()
	store := NewCertificateStore()
	a1, _ := store.NextSerial(ctx, "2922")
	a2, _ := store.NextSerial(ctx, "2922")
	b1, _ := store.NextSerial(ctx, "0100")
	if a1 != 1 || a2 != 2 || b1 != 1 {
		t.Fatalf("unexpected serials %d %d %d", a1, a2, b1)
	}
}

func TestAttemptsDedupeByID(t *testing.T) {
	ctx := context.Background()
	store := NewCertificateStore()
	first := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	_ = store.SaveAttempt(ctx, domain.Attempt{ID: "a1", QuizCode: "QZ", CorrectCnt: 1, QuestionCnt: 3, CreatedAt: first})
	_ = store.SaveAttempt(ctx, domain.Attempt{ID: "a1", QuizCode: "QZ", CorrectCnt: 3, QuestionCnt: 3, CreatedAt: first.Add(time.Minute)})
	_ = store.SaveAttempt(ctx, domain.Attempt{ID: "a2", QuizCode: "OTHER", CreatedAt: first})

	attempts, err := store.ListAttempts(ctx, "QZ")
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].CorrectCnt != 3 || !attempts[0].CreatedAt.Equal(first) {
		t.Fatalf("expected one replaced attempt keeping first timestamp, got %+v", attempts)
	}
}
