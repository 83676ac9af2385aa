package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"anniv-certificate-service/internal/client"
	"anniv-certificate-service/internal/domain"
)

func (st *testStack) issue(t *testing.T, name, workNo, start, wishes string) domain.Certificate {
	t.Helper()
	c := client.New(st.srv.URL)
	res, err := c.IssueCertificate(context.Background(), domain.IssueRequest{
		Name: name, WorkNo: workNo, StartDate: start, Wishes: wishes, PassToken: st.passToken(t),
	})
	if err != nil {
		t.Fatalf("issue %s: %v", workNo, err)
	}
	return res.Certificate
}

func (st *testStack) login(t *testing.T) (*client.Client, client.Credentials) {
	t.Helper()
	c := client.New(st.srv.URL)
	creds, _, err := c.Login(context.Background(), "admin", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return c, creds
}

func TestAdminListUpdateDelete(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	first := st.issue(t, "张三", "E001", "2017-09-06", "生日快乐")
	st.issue(t, "李四", "E002", "2019-03-01", "")
	st.issue(t, "王五", "E003", "2021-07-15", "前程似锦")

	c, creds := st.login(t)

	page, err := c.ListCertificates(ctx, creds, 1, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.Page != 1 || page.Size != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	page, err = c.ListCertificates(ctx, creds, 1, 20, "李四")
	if err != nil || page.Total != 1 || page.Items[0].WorkNo != "E002" {
		t.Fatalf("unexpected search result %+v %v", page, err)
	}

	name := "张三丰"
	updated, err := c.UpdateCertificate(ctx, creds, first.FullNo, domain.CertificatePatch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.FullNo != first.FullNo {
		t.Fatalf("unexpected update %+v", updated)
	}

	taken := "E002"
	_, err = c.UpdateCertificate(ctx, creds, first.FullNo, domain.CertificatePatch{WorkNo: &taken})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Message != "该工号已存在证书" {
		t.Fatalf("expected 409 conflict, got %v", err)
	}

	_, err = c.UpdateCertificate(ctx, creds, "SCS01-0000-9999", domain.CertificatePatch{Name: &name})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	resp, _ := st.do(t, http.MethodPut, "/admin/certificates/"+first.FullNo, `{"name":`, map[string]string{"Authorization": "Bearer " + creds.Token})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed patch, got %d", resp.StatusCode)
	}

	resp, _ = st.do(t, http.MethodDelete, "/admin/certificates/"+first.FullNo, nil, map[string]string{"Authorization": "Bearer " + creds.Token})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if err := c.DeleteCertificate(ctx, creds, first.FullNo); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %v", err)
	}
}

func TestAdminListHugePage(t *testing.T) {
	st := newTestStack(t)
	st.issue(t, "张三", "E001", "2017-09-06", "")
	_, creds := st.login(t)

	resp, body := st.do(t, http.MethodGet, "/admin/certificates?page=9223372036854775807&size=200", nil,
		map[string]string{"Authorization": "Bearer " + creds.Token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var page domain.CertificatePage
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}

func TestAdminExportCSV(t *testing.T) {
	st := newTestStack(t)
	st.issue(t, "张三", "E001", "2017-09-06", "生日快乐")
	st.issue(t, "李四", "E002", "2019-03-01", "")
	_, creds := st.login(t)
	auth := map[string]string{"Authorization": "Bearer " + creds.Token}

	resp, body := st.do(t, http.MethodPost, "/admin/certificates/export", map[string]any{
		"columns": []string{"fullNo", "name", "workDays"},
	}, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: %d %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, `filename="certificates_`) {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 || lines[0] != "\ufeff证书编号,姓名,工龄(天)" {
		t.Fatalf("unexpected csv %q", body)
	}

	resp, _ = st.do(t, http.MethodPost, "/admin/certificates/export", nil, auth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected empty body to export all columns, got %d", resp.StatusCode)
	}

	status, env := st.envelope(t, http.MethodPost, "/admin/certificates/export", map[string]any{"columns": []string{"salary"}}, auth)
	if status != http.StatusBadRequest || env.Message != "不支持的导出列" {
		t.Fatalf("expected unknown column rejection, got %d %q", status, env.Message)
	}
	status, _ = st.envelope(t, http.MethodPost, "/admin/certificates/export", map[string]any{"format": "xlsx"}, auth)
	if status != http.StatusBadRequest {
		t.Fatalf("expected unsupported format rejection, got %d", status)
	}

	c := client.New(st.srv.URL)
	var buf bytes.Buffer
	if err := c.ExportCertificates(context.Background(), creds, domain.ExportRequest{Query: "E002"}, &buf); err != nil {
		t.Fatalf("client export: %v", err)
	}
	if got := strings.Count(strings.TrimSpace(buf.String()), "\n"); got != 1 {
		t.Fatalf("expected header plus one row, got %q", buf.String())
	}
}

func TestAdminStatsEndpoints(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	st.issue(t, "张三", "E001", "2017-09-06", "生日快乐")
	st.issue(t, "李四", "E002", "2019-03-01", "")
	c, creds := st.login(t)

	stats, err := c.Stats(ctx, creds)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCertificates != 2 || stats.TodaySubmissions != 2 || stats.ValidBlessings != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	trend, err := c.Trend(ctx, creds, 5)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(trend.Labels) != 5 || trend.Values[4] != 2 {
		t.Fatalf("unexpected trend %+v", trend)
	}

	survey, err := c.SurveyStats(ctx, creds)
	if err != nil {
		t.Fatalf("survey stats: %v", err)
	}
	if survey.TotalParticipants != 2 || len(survey.Questions) != 3 || !survey.Questions[2].IsSimple {
		t.Fatalf("unexpected survey stats %+v", survey)
	}

	if _, err := c.Stats(ctx, client.Credentials{Token: "expired"}); !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
