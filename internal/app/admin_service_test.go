package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"anniv-certificate-service/internal/app"
	"anniv-certificate-service/internal/domain"
)

type idLabels struct{}

func (idLabels) T(id string) string { return id }

func seed(t *testing.T, env *testEnv, certs ...domain.Certificate) {
	t.Helper()
	for _, c := range certs {
		if err := env.store.Create(context.Background(), c); err != nil {
			t.Fatalf("seed %s: %v", c.FullNo, err)
		}
	}
}

func sampleCerts() []domain.Certificate {
	return []domain.Certificate{
		{FullNo: "SCS01-2922-0001", Name: "张三", WorkNo: "E001", StartDate: "2017-09-06", DaysToTarget: 2922, Wishes: "生日快乐", CreatedAt: testNow.Add(-time.Hour)},
		{FullNo: "SCS01-1000-0001", Name: "李四", WorkNo: "E002", StartDate: "2022-12-11", DaysToTarget: 1000, CreatedAt: testNow.AddDate(0, 0, -1)},
		{FullNo: "SCS01-0365-0001", Name: "王五", WorkNo: "E003", StartDate: "2024-09-06", DaysToTarget: 365, Wishes: " ", CreatedAt: testNow.AddDate(0, 0, -10)},
	}
}

func TestAdminListPages(t *testing.T) {
	env := newTestEnv(false)
	seed(t, env, sampleCerts()...)
	ctx := context.Background()

	page, err := env.admin.List(ctx, 0, 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page != 1 || page.Size != 20 || page.Total != 3 || page.Items[0].WorkNo != "E001" {
		t.Fatalf("unexpected default page %+v", page)
	}

	page, _ = env.admin.List(ctx, 2, 2, "")
	if len(page.Items) != 1 || page.Items[0].WorkNo != "E003" {
		t.Fatalf("unexpected second page %+v", page)
	}

	page, _ = env.admin.List(ctx, 1, 1000, "李")
	if page.Size != 200 || page.Total != 1 || page.Items[0].Name != "李四" {
		t.Fatalf("unexpected search page %+v", page)
	}

	page, _ = env.admin.List(ctx, 5, 20, "")
	if page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("expected empty non-nil items past the end, got %#v", page.Items)
	}

	page, err = env.admin.List(ctx, math.MaxInt/10, 200, "")
	if err != nil || len(page.Items) != 0 || page.Total != 3 {
		t.Fatalf("expected empty page for a huge page number, got %+v %v", page, err)
	}
	if page.Page <= 1 || (page.Page-1)*page.Size < 0 {
		t.Fatalf("page %d overflows the offset", page.Page)
	}
}

func TestAdminUpdate(t *testing.T) {
	env := newTestEnv(false)
	seed(t, env, sampleCerts()...)
	ctx := context.Background()
	str := func(s string) *string { return &s }

	cert, err := env.admin.Update(ctx, "SCS01-1000-0001", domain.CertificatePatch{
		Name:      str("李四四"),
		StartDate: str("2017-09-06"),
		Wishes:    str(" 新祝福 "),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cert.FullNo != "SCS01-1000-0001" || cert.Name != "李四四" || cert.DaysToTarget != 2922 || cert.Wishes != "新祝福" {
		t.Fatalf("unexpected update %+v", cert)
	}
	if !cert.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected updatedAt refreshed, got %s", cert.UpdatedAt)
	}

	cases := []struct {
		patch domain.CertificatePatch
		want  error
	}{
		{domain.CertificatePatch{WorkNo: str("E001")}, domain.ErrWorkNoTaken},
		{domain.CertificatePatch{Name: str(" ")}, domain.ErrMissingFields},
		{domain.CertificatePatch{StartDate: str("2010-01-01")}, domain.ErrJoinDateOutOfRange},
		{domain.CertificatePatch{StartDate: str("soon")}, domain.ErrInvalidDate},
	}
	for i, tc := range cases {
		if _, err := env.admin.Update(ctx, "SCS01-1000-0001", tc.patch); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}
	if _, err := env.admin.Update(ctx, "missing", domain.CertificatePatch{}); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := env.admin.Update(ctx, "SCS01-1000-0001", domain.CertificatePatch{WorkNo: str("E009")}); err != nil {
		t.Fatalf("change work no: %v", err)
	}
	if _, err := env.store.FindByWorkNo(ctx, "E009"); err != nil {
		t.Fatalf("expected new work no stored: %v", err)
	}
}

func TestAdminDelete(t *testing.T) {
	env := newTestEnv(false)
	seed(t, env, sampleCerts()...)
	ctx := context.Background()
	if err := env.admin.Delete(ctx, "SCS01-2922-0001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.admin.Delete(ctx, "SCS01-2922-0001"); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdminExportCSV(t *testing.T) {
	env := newTestEnv(false)
	seed(t, env, sampleCerts()...)
	ctx := context.Background()

	var buf bytes.Buffer
	err := env.admin.Export(ctx, &buf, domain.ExportRequest{Columns: []string{"fullNo", "name", "workDays", "createdAt"}}, idLabels{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "\ufeff") {
		t.Fatalf("expected BOM prefix")
	}
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "ColumnFullNo,ColumnName,ColumnWorkDays,ColumnCreatedAt" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if strings.Join(rows[1], ",") != "SCS01-2922-0001,张三,2922,2025-09-06 09:00:00" {
		t.Fatalf("unexpected first row %v", rows[1])
	}

	buf.Reset()
	if err := env.admin.Export(ctx, &buf, domain.ExportRequest{Query: "E00", Limit: 1}, idLabels{}); err != nil {
		t.Fatalf("export limited: %v", err)
	}
	rows, _ = csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	if len(rows) != 2 || len(rows[0]) != len(app.ExportColumns) {
		t.Fatalf("expected all columns and one row, got %v", rows)
	}

	if err := env.admin.Export(ctx, &buf, domain.ExportRequest{Columns: []string{"salary"}}, idLabels{}); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Fatalf("expected unknown column, got %v", err)
	}
	if err := env.admin.Export(ctx, &buf, domain.ExportRequest{Format: "xlsx"}, idLabels{}); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestAdminStatsAndTrend(t *testing.T) {
	env := newTestEnv(false)
	seed(t, env, sampleCerts()...)
	ctx := context.Background()

	stats, err := env.admin.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.DashboardStats{TotalCertificates: 3, TodaySubmissions: 1, AverageWorkYears: 3.9, ValidBlessings: 1}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}

	trend, err := env.admin.Trend(ctx, 0)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(trend.Labels) != 7 || trend.Labels[6] != "09-06" || trend.Labels[0] != "08-31" {
		t.Fatalf("unexpected labels %v", trend.Labels)
	}
	if trend.Values[6] != 1 || trend.Values[5] != 1 {
		t.Fatalf("unexpected values %v", trend.Values)
	}

	trend, _ = env.admin.Trend(ctx, 30)
	total := 0
	for _, v := range trend.Values {
		total += v
	}
	if len(trend.Values) != 30 || total != 3 {
		t.Fatalf("expected 30 days covering every certificate, got %d/%d", len(trend.Values), total)
	}
}

func TestAdminSurveyStats(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	wrong := allAnswers()
	wrong[1].OptionID = 7
	for i, answers := range [][]domain.AnswerSubmission{allAnswers(), wrong, allAnswers()[:1]} {
		if _, err := env.quiz.Validate(ctx, domain.ValidationRequest{QuizCode: "ANNIV25QZ-0001", Answers: answers}); err != nil {
			t.Fatalf("validate %d: %v", i, err)
		}
	}

	stats, err := env.admin.SurveyStats(ctx)
	if err != nil {
		t.Fatalf("survey stats: %v", err)
	}
	if stats.TotalParticipants != 3 || stats.PassedParticipants != 1 || stats.PassRate != 33 || stats.TodayAnswers != 3 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.AverageScore != 66.7 {
		t.Fatalf("expected average score 66.7, got %v", stats.AverageScore)
	}
	if len(stats.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(stats.Questions))
	}
	q2 := stats.Questions[1]
	if q2.ID != 2 || q2.TotalAnswers != 3 || q2.CorrectAnswers != 1 || q2.CorrectRate != 33 || q2.IsSimple {
		t.Fatalf("unexpected question 2 stats %+v", q2)
	}
	if !stats.Questions[2].IsSimple {
		t.Fatalf("text question must be marked simple")
	}
}

func TestAdminFeed(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	ch, cancel, err := env.admin.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ev := <-ch
	if ev.Type != app.EventSnapshot || ev.Stats.TotalCertificates != 0 {
		t.Fatalf("expected empty snapshot, got %+v", ev)
	}

	token := passToken(t, env)
	if _, err := env.certs.Issue(ctx, domain.IssueRequest{Name: "张三", StartDate: "2017-09-06", WorkNo: "E001", PassToken: token}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	select {
	case ev = <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected issued event")
	}
	if ev.Type != app.EventIssued || ev.Certificate == nil || ev.Certificate.WorkNo != "E001" || ev.Stats.TotalCertificates != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}

	if err := env.admin.Delete(ctx, ev.Certificate.FullNo); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ev = <-ch; ev.Type != app.EventDeleted || ev.Stats.TotalCertificates != 0 {
		t.Fatalf("unexpected delete event %+v", ev)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if env.feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestFeedDropsOldestWhenFull(t *testing.T) {
	env := newTestEnv(false)
	ch, cancel, err := env.admin.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for i := 0; i < 20; i++ {
		env.feed.Publish(domain.FeedEvent{Type: "tick", Stats: domain.DashboardStats{TotalCertificates: i}})
	}
	var last domain.FeedEvent
	n := 0
	for len(ch) > 0 {
		last = <-ch
		n++
	}
	if n != 8 || last.Stats.TotalCertificates != 19 {
		t.Fatalf("expected the 8 newest events, got %d ending at %d", n, last.Stats.TotalCertificates)
	}
}
