package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"

	_ "modernc.org/sqlite"
)

// Store is a single-file certificate store. It implements
// app.CertificateRepository and app.AttemptRepository.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS certificates (
		full_no TEXT PRIMARY KEY,
		scs_code TEXT NOT NULL,
		days_to_target INTEGER NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		work_no TEXT NOT NULL UNIQUE,
		wishes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_certificates_created_at ON certificates(created_at);

	CREATE TABLE IF NOT EXISTS certificate_serials (
		bucket TEXT PRIMARY KEY,
		last INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id TEXT PRIMARY KEY,
		quiz_code TEXT NOT NULL,
		items TEXT NOT NULL,
		correct_cnt INTEGER NOT NULL,
		question_cnt INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const certificateColumns = `full_no, scs_code, days_to_target, name, start_date, work_no, wishes, created_at, updated_at`

// NextSerial returns the next serial inside bucket.
func (s *Store) NextSerial(ctx context.Context, bucket string) (int, error) {
	var serial int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO certificate_serials (bucket, last) VALUES (?, 1)
		 ON CONFLICT(bucket) DO UPDATE SET last = last + 1
		 RETURNING last`, bucket).Scan(&serial)
	if err != nil {
		return 0, fmt.Errorf("next serial: %w", err)
	}
	return serial, nil
}

func (s *Store) FindByWorkNo(ctx context.Context, workNo string) (domain.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE work_no = ?`, workNo)
	return scanCertificate(row)
}

func (s *Store) FindByFullNo(ctx context.Context, fullNo string) (domain.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE full_no = ?`, fullNo)
	return scanCertificate(row)
}

func (s *Store) Create(ctx context.Context, c domain.Certificate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO certificates (`+certificateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.FullNo, c.ScsCode, c.DaysToTarget, c.Name, c.StartDate, c.WorkNo, c.Wishes,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return mapConstraint(err)
}

func (s *Store) Update(ctx context.Context, c domain.Certificate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE certificates SET days_to_target = ?, name = ?, start_date = ?, work_no = ?, wishes = ?, updated_at = ?
		 WHERE full_no = ?`,
		c.DaysToTarget, c.Name, c.StartDate, c.WorkNo, c.Wishes, formatTime(c.UpdatedAt), c.FullNo,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, fullNo string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE full_no = ?`, fullNo)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns certificates newest first. The query matches name, employee ID
// or certificate number.
func (s *Store) List(ctx context.Context, filter domain.CertificateFilter) ([]domain.Certificate, int, error) {
	where := ""
	var args []any
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		where = ` WHERE name LIKE ? OR work_no LIKE ? OR full_no LIKE ?`
		args = append(args, like, like, like)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates`+where+
			` ORDER BY created_at DESC, full_no DESC LIMIT ? OFFSET ?`,
		append(args, limit, max(filter.Offset, 0))...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	certs := []domain.Certificate{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, 0, err
		}
		certs = append(certs, c)
	}
	return certs, total, rows.Err()
}

// SaveAttempt inserts an attempt or replaces the answers of an existing one.
func (s *Store) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	items, err := json.Marshal(a.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, quiz_code, items, correct_cnt, question_cnt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET items = excluded.items,
		   correct_cnt = excluded.correct_cnt, question_cnt = excluded.question_cnt`,
		a.ID, a.QuizCode, string(items), a.CorrectCnt, a.QuestionCnt, formatTime(a.CreatedAt),
	)
	return err
}

func (s *Store) ListAttempts(ctx context.Context, quizCode string) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_code, items, correct_cnt, question_cnt, created_at
		 FROM quiz_attempts WHERE quiz_code = ? ORDER BY created_at`, quizCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a        domain.Attempt
			items    string
			recorded string
		)
		if err := rows.Scan(&a.ID, &a.QuizCode, &items, &a.CorrectCnt, &a.QuestionCnt, &recorded); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &a.Items); err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", a.ID, err)
		}
		if a.CreatedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row scanner) (domain.Certificate, error) {
	var (
		c                domain.Certificate
		created, updated string
	)
	err := row.Scan(&c.FullNo, &c.ScsCode, &c.DaysToTarget, &c.Name, &c.StartDate, &c.WorkNo, &c.Wishes, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	if err != nil {
		return domain.Certificate{}, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return domain.Certificate{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Certificate{}, err
	}
	return c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "certificates.work_no") {
		return fmt.Errorf("%w: %v", domain.ErrWorkNoTaken, err)
	}
	return err
}

// Times are stored as fixed-width UTC text so that ORDER BY sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t, nil
}
