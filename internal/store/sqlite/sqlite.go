// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id_from_file TEXT NOT NULL UNIQUE,
	name                   TEXT,
	email                  TEXT UNIQUE,
	phone                  TEXT,
	extracted_cv_json      TEXT,
	status                 TEXT NOT NULL,
	original_file_path     TEXT,
	created_at             TEXT NOT NULL,
	updated_at             TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS job_descriptions (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	job_title               TEXT NOT NULL,
	raw_description         TEXT NOT NULL,
	structured_summary_json TEXT,
	status                  TEXT NOT NULL,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS applications (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	job_description_id  INTEGER NOT NULL REFERENCES job_descriptions(id),
	candidate_id        INTEGER NOT NULL REFERENCES candidates(id),
	match_score         REAL,
	match_justification TEXT,
	status              TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	UNIQUE (job_description_id, candidate_id)
);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE INDEX IF NOT EXISTS idx_applications_job_status ON applications(job_description_id, status);
`

const (
	candidateColumns   = `id, candidate_id_from_file, name, email, phone, extracted_cv_json, status, original_file_path, created_at, updated_at`
	jobColumns         = `id, job_title, raw_description, structured_summary_json, status, created_at, updated_at`
	applicationColumns = `id, job_description_id, candidate_id, match_score, match_justification, status, created_at, updated_at`
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" is accepted for throwaway databases.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- candidates ---

func (s *Store) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO candidates (candidate_id_from_file, name, email, phone, extracted_cv_json, status, original_file_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.FileID, nullable(c.Name), nullable(c.Email), nullable(c.Phone), nullable(c.ExtractedCVJSON),
		string(c.Status), nullable(c.OriginalFilePath), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert candidate %s: %w", c.FileID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("candidate id: %w", err)
	}
	c.ID, c.CreatedAt, c.UpdatedAt = id, now, now
	return nil
}

func (s *Store) GetCandidate(ctx context.Context, id int64) (*model.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("candidate", id)
	}
	return c, err
}

func (s *Store) FindCandidateByFileID(ctx context.Context, fileID string) (*model.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE candidate_id_from_file = ?`, fileID)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("candidate", fileID)
	}
	return c, err
}

func (s *Store) ListCandidates(ctx context.Context, filter store.CandidateFilter) ([]*model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []*model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveCandidate(ctx context.Context, c *model.Candidate) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET candidate_id_from_file = ?, name = ?, email = ?, phone = ?, extracted_cv_json = ?,
		 status = ?, original_file_path = ?, updated_at = ? WHERE id = ?`,
		c.FileID, nullable(c.Name), nullable(c.Email), nullable(c.Phone), nullable(c.ExtractedCVJSON),
		string(c.Status), nullable(c.OriginalFilePath), formatTime(now), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update candidate %d: %w", c.ID, err)
	}
	if err := expectRow(res, "candidate", c.ID); err != nil {
		return err
	}
	c.UpdatedAt = now
	return nil
}

// --- job descriptions ---

func (s *Store) CreateJobs(ctx context.Context, jobs []*model.JobDescription) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO job_descriptions (job_title, raw_description, structured_summary_json, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare job insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		res, err := stmt.ExecContext(ctx, j.Title, j.RawDescription, nullable(j.StructuredSummaryJSON),
			string(j.Status), formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("insert job %q: %w", j.Title, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("job id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, j := range jobs {
		j.ID, j.CreatedAt, j.UpdatedAt = ids[i], now, now
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*model.JobDescription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job_descriptions WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job description", id)
	}
	return j, err
}

func (s *Store) JobExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM job_descriptions WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("job exists %d: %w", id, err)
	}
	return exists, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*model.JobDescription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM job_descriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.JobDescription
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) SaveJob(ctx context.Context, j *model.JobDescription) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_descriptions SET job_title = ?, raw_description = ?, structured_summary_json = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		j.Title, j.RawDescription, nullable(j.StructuredSummaryJSON), string(j.Status), formatTime(now), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	if err := expectRow(res, "job description", j.ID); err != nil {
		return err
	}
	j.UpdatedAt = now
	return nil
}

// --- applications ---

func (s *Store) FindOrCreateApplication(ctx context.Context, jobID, candidateID int64) (*model.Application, error) {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (job_description_id, candidate_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (job_description_id, candidate_id) DO NOTHING`,
		jobID, candidateID, string(model.ApplicationMatchingStarted), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert application (%d, %d): %w", jobID, candidateID, err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE job_description_id = ? AND candidate_id = ?`,
		jobID, candidateID)
	return scanApplication(row)
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("application", id)
	}
	return a, err
}

func (s *Store) ListApplications(ctx context.Context, filter store.ApplicationFilter) ([]*model.Application, error) {
	var (
		where []string
		args  []any
	)
	if filter.JobID != 0 {
		where = append(where, `job_description_id = ?`)
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.MinScore != nil {
		where = append(where, `match_score IS NOT NULL AND match_score >= ?`)
		args = append(args, *filter.MinScore)
	}

	query := `SELECT ` + applicationColumns + ` FROM applications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveApplication(ctx context.Context, a *model.Application) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, updateApplication, applicationArgs(a, now)...)
	if err != nil {
		return fmt.Errorf("update application %d: %w", a.ID, err)
	}
	if err := expectRow(res, "application", a.ID); err != nil {
		return err
	}
	a.UpdatedAt = now
	return nil
}

func (s *Store) SaveApplications(ctx context.Context, apps []*model.Application) error {
	if len(apps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, a := range apps {
		res, err := tx.ExecContext(ctx, updateApplication, applicationArgs(a, now)...)
		if err != nil {
			return fmt.Errorf("update application %d: %w", a.ID, err)
		}
		if err := expectRow(res, "application", a.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, a := range apps {
		a.UpdatedAt = now
	}
	return nil
}

const updateApplication = `UPDATE applications SET match_score = ?, match_justification = ?, status = ?, updated_at = ? WHERE id = ?`

func applicationArgs(a *model.Application, now time.Time) []any {
	var score any
	if a.MatchScore != nil {
		score = *a.MatchScore
	}
	return []any{score, nullable(a.MatchJustification), string(a.Status), formatTime(now), a.ID}
}
