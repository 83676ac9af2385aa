package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"anniv-certificate-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const certificateColumns = `full_no, scs_code, days_to_target, name, start_date, work_no, wishes, created_at, updated_at`

// CertificateStore persists certificates and quiz attempts in Postgres. It
// implements app.CertificateRepository and app.AttemptRepository.
type CertificateStore struct {
	pool *pgxpool.Pool
}

func NewCertificateStore(pool *pgxpool.Pool) *CertificateStore {
	return &CertificateStore{pool: pool}
}

func (s *CertificateStore) NextSerial(ctx context.Context, bucket string) (int, error) {
	var serial int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO certificate_serials (bucket, last) VALUES ($1, 1)
		 ON CONFLICT (bucket) DO UPDATE SET last = certificate_serials.last + 1
		 RETURNING last`, bucket).Scan(&serial)
	if err != nil {
		return 0, fmt.Errorf("next serial: %w", err)
	}
	return serial, nil
}

func (s *CertificateStore) FindByWorkNo(ctx context.Context, workNo string) (domain.Certificate, error) {
	return scanCertificate(s.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE work_no=$1`, workNo))
}

func (s *CertificateStore) FindByFullNo(ctx context.Context, fullNo string) (domain.Certificate, error) {
	return scanCertificate(s.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE full_no=$1`, fullNo))
}

func (s *CertificateStore) Create(ctx context.Context, c domain.Certificate) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO certificates (`+certificateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.FullNo, c.ScsCode, c.DaysToTarget, c.Name, c.StartDate, c.WorkNo, c.Wishes, c.CreatedAt, c.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (s *CertificateStore) Update(ctx context.Context, c domain.Certificate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE certificates SET days_to_target=$1, name=$2, start_date=$3, work_no=$4, wishes=$5, updated_at=$6
		 WHERE full_no=$7`,
		c.DaysToTarget, c.Name, c.StartDate, c.WorkNo, c.Wishes, c.UpdatedAt, c.FullNo,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func (s *CertificateStore) Delete(ctx context.Context, fullNo string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM certificates WHERE full_no=$1`, fullNo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func (s *CertificateStore) List(ctx context.Context, filter domain.CertificateFilter) ([]domain.Certificate, int, error) {
	where := ""
	args := []interface{}{}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		where = ` WHERE name ILIKE $1 OR work_no ILIKE $1 OR full_no ILIKE $1`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM certificates%s ORDER BY created_at DESC, full_no DESC LIMIT $%d OFFSET $%d`,
		certificateColumns, where, n+1, n+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, max(filter.Offset, 0))...)
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

func (s *CertificateStore) SaveAttempt(ctx context.Context, a domain.Attempt) error {
	items, err := json.Marshal(a.Items)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, quiz_code, items, correct_cnt, question_cnt, created_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET items=EXCLUDED.items,
		   correct_cnt=EXCLUDED.correct_cnt, question_cnt=EXCLUDED.question_cnt`,
		a.ID, a.QuizCode, string(items), a.CorrectCnt, a.QuestionCnt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *CertificateStore) ListAttempts(ctx context.Context, quizCode string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_code, items, correct_cnt, question_cnt, created_at
		 FROM quiz_attempts WHERE quiz_code=$1 ORDER BY created_at`, quizCode)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a     domain.Attempt
			items []byte
		)
		if err := rows.Scan(&a.ID, &a.QuizCode, &items, &a.CorrectCnt, &a.QuestionCnt, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &a.Items); err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanCertificate(row pgx.Row) (domain.Certificate, error) {
	var c domain.Certificate
	var created, updated time.Time
	err := row.Scan(&c.FullNo, &c.ScsCode, &c.DaysToTarget, &c.Name, &c.StartDate, &c.WorkNo, &c.Wishes, &created, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	if err != nil {
		return domain.Certificate{}, err
	}
	c.CreatedAt, c.UpdatedAt = created.UTC(), updated.UTC()
	return c, nil
}

func mapUniqueViolation(err error) error {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" && strings.Contains(err.Error(), "work_no") {
		return fmt.Errorf("%w: %v", domain.ErrWorkNoTaken, err)
	}
	return err
}
