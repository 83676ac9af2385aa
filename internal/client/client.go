// Package client talks to the anniversary API: the three public wizard
// endpoints and the admin console endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultExportTimeout = 60 * time.Second
)

var (
	// ErrMalformedResponse is returned for 2xx responses without the expected data.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUnauthorized is wrapped by 401 API errors; admin callers should log out.
	ErrUnauthorized = errors.New("unauthorized")
)

// IssueMessages are the success messages of the issuance endpoint.
var IssueMessages = []string{"恭喜成功", "ok", "保存成功"}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("api error: HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Credentials authorize admin calls.
type Credentials struct {
	Token string
}

// IssueResponse is a successful issuance.
type IssueResponse struct {
	Message     string
	Certificate domain.Certificate
}

type Client struct {
	baseURL       string
	http          *http.Client
	timeout       time.Duration
	exportTimeout time.Duration
	lang          string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every call except exports.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithExportTimeout bounds CSV exports.
func WithExportTimeout(d time.Duration) Option {
	return func(c *Client) { c.exportTimeout = d }
}

// WithLanguage sets Accept-Language on every request.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.lang = lang }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{},
		timeout:       DefaultTimeout,
		exportTimeout: DefaultExportTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchQuiz loads the active question set.
func (c *Client) FetchQuiz(ctx context.Context) (domain.Quiz, error) {
	var quiz domain.Quiz
	if _, err := c.callEnvelope(ctx, http.MethodGet, "/anniv/quiz", nil, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("fetch quiz: %w", err)
	}
	if quiz.Code == "" || quiz.Questions == nil {
		return domain.Quiz{}, fmt.Errorf("fetch quiz: %w: missing quizCode or questions", ErrMalformedResponse)
	}
	return quiz, nil
}

// ValidateAnswers submits an answer set and returns the pass token.
func (c *Client) ValidateAnswers(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error) {
	var res domain.ValidationResult
	if _, err := c.callEnvelope(ctx, http.MethodPost, "/anniv/quiz/validate", req, &res); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("validate answers: %w", err)
	}
	if res.PassToken == "" {
		return domain.ValidationResult{}, fmt.Errorf("validate answers: %w: missing passToken", ErrMalformedResponse)
	}
	return res, nil
}

// IssueCertificate requests the visitor's certificate.
func (c *Client) IssueCertificate(ctx context.Context, req domain.IssueRequest) (IssueResponse, error) {
	var cert domain.Certificate
	msg, err := c.callEnvelope(ctx, http.MethodPost, "/anniv/certificates/issue", req, &cert)
	if err != nil {
		return IssueResponse{}, fmt.Errorf("issue certificate: %w", err)
	}
	if cert.FullNo == "" {
		return IssueResponse{}, fmt.Errorf("issue certificate: %w: missing fullNo", ErrMalformedResponse)
	}
	if !isIssueMessage(msg) {
		return IssueResponse{}, fmt.Errorf("issue certificate: %w: unexpected message %q", ErrMalformedResponse, msg)
	}
	return IssueResponse{Message: msg, Certificate: cert}, nil
}

// Login exchanges admin credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, domain.LoginResult, error) {
	var res domain.LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.callJSON(ctx, Credentials{}, http.MethodPost, "/auth/login", body, &res); err != nil {
		return Credentials{}, domain.LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if res.Token == "" {
		return Credentials{}, domain.LoginResult{}, fmt.Errorf("login: %w: missing token", ErrMalformedResponse)
	}
	return Credentials{Token: res.Token}, res, nil
}

// ListCertificates returns one page of the admin listing.
func (c *Client) ListCertificates(ctx context.Context, creds Credentials, page, size int, q string) (domain.CertificatePage, error) {
	v := url.Values{}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		v.Set("size", strconv.Itoa(size))
	}
	if q != "" {
		v.Set("q", q)
	}
	path := "/admin/certificates"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var res domain.CertificatePage
	if err := c.callJSON(ctx, creds, http.MethodGet, path, nil, &res); err != nil {
		return domain.CertificatePage{}, fmt.Errorf("list certificates: %w", err)
	}
	return res, nil
}

// UpdateCertificate applies an admin edit.
func (c *Client) UpdateCertificate(ctx context.Context, creds Credentials, fullNo string, patch domain.CertificatePatch) (domain.Certificate, error) {
	var res domain.Certificate
	if err := c.callJSON(ctx, creds, http.MethodPut, "/admin/certificates/"+url.PathEscape(fullNo), patch, &res); err != nil {
		return domain.Certificate{}, fmt.Errorf("update certificate: %w", err)
	}
	return res, nil
}

// DeleteCertificate removes a certificate.
func (c *Client) DeleteCertificate(ctx context.Context, creds Credentials, fullNo string) error {
	if err := c.callJSON(ctx, creds, http.MethodDelete, "/admin/certificates/"+url.PathEscape(fullNo), nil, nil); err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}

// ExportCertificates streams the CSV export into w.
func (c *Client) ExportCertificates(ctx context.Context, creds Credentials, req domain.ExportRequest, w io.Writer) error {
	if req.Format == "" {
		req.Format = "csv"
	}
	ctx, cancel := context.WithTimeout(ctx, c.exportTimeout)
	defer cancel()
	resp, err := c.do(ctx, creds, http.MethodPost, "/admin/certificates/export", req)
	if err != nil {
		return fmt.Errorf("export certificates: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("export certificates: %w", err)
	}
	return nil
}

// Stats fetches the dashboard counters.
func (c *Client) Stats(ctx context.Context, creds Credentials) (domain.DashboardStats, error) {
	var res domain.DashboardStats
	if err := c.callJSON(ctx, creds, http.MethodGet, "/admin/stats", nil, &res); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("stats: %w", err)
	}
	return res, nil
}

// Trend fetches per-day issuance counts.
func (c *Client) Trend(ctx context.Context, creds Credentials, days int) (domain.Trend, error) {
	var res domain.Trend
	if err := c.callJSON(ctx, creds, http.MethodGet, "/admin/trend?days="+strconv.Itoa(days), nil, &res); err != nil {
		return domain.Trend{}, fmt.Errorf("trend: %w", err)
	}
	if len(res.Labels) != len(res.Values) {
		return domain.Trend{}, fmt.Errorf("trend: %w: labels and values differ in length", ErrMalformedResponse)
	}
	return res, nil
}

// SurveyStats fetches quiz answer statistics.
func (c *Client) SurveyStats(ctx context.Context, creds Credentials) (domain.SurveyStats, error) {
	var res domain.SurveyStats
	if err := c.callJSON(ctx, creds, http.MethodGet, "/admin/survey-stats", nil, &res); err != nil {
		return domain.SurveyStats{}, fmt.Errorf("survey stats: %w", err)
	}
	return res, nil
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// callEnvelope performs a public call and decodes {message, data} into out.
func (c *Client) callEnvelope(ctx context.Context, method, path string, body, out any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.do(ctx, Credentials{}, method, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return env.Message, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return env.Message, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return env.Message, nil
}

// callJSON performs an admin call whose body is the bare JSON payload.
func (c *Client) callJSON(ctx context.Context, creds Credentials, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.do(ctx, creds, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// do sends the request and turns non-2xx responses into *APIError.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		apiErr := &APIError{Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			apiErr.Message = env.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return resp, nil
}

func isIssueMessage(msg string) bool {
	for _, m := range IssueMessages {
		if msg == m {
			return true
		}
	}
	return false
}
