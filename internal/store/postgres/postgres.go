// Package postgres implements store.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	candidateColumns   = `id, candidate_id_from_file, COALESCE(name,''), COALESCE(email,''), COALESCE(phone,''), COALESCE(extracted_cv_json,''), status, COALESCE(original_file_path,''), created_at, updated_at`
	jobColumns         = `id, job_title, raw_description, COALESCE(structured_summary_json,''), status, created_at, updated_at`
	applicationColumns = `id, job_description_id, candidate_id, match_score, COALESCE(match_justification,''), status, created_at, updated_at`
)

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Connect creates a pgx pool and applies the embedded schema.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("postgres connected", zap.String("host", config.ConnConfig.Host))
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		s.logger.Debug("migration applied", zap.String("file", entry.Name()))
	}
	return nil
}

// --- candidates ---

func (s *Store) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO candidates (candidate_id_from_file, name, email, phone, extracted_cv_json, status, original_file_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`,
		c.FileID, nullable(c.Name), nullable(c.Email), nullable(c.Phone), nullable(c.ExtractedCVJSON),
		string(c.Status), nullable(c.OriginalFilePath),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert candidate %s: %w", c.FileID, err)
	}
	return nil
}

func (s *Store) GetCandidate(ctx context.Context, id int64) (*model.Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("candidate", id)
	}
	return c, err
}

func (s *Store) FindCandidateByFileID(ctx context.Context, fileID string) (*model.Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE candidate_id_from_file = $1`, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("candidate", fileID)
	}
	return c, err
}

func (s *Store) ListCandidates(ctx context.Context, filter store.CandidateFilter) ([]*model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
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
	err := s.pool.QueryRow(ctx,
		`UPDATE candidates SET candidate_id_from_file = $1, name = $2, email = $3, phone = $4, extracted_cv_json = $5,
		 status = $6, original_file_path = $7, updated_at = now() WHERE id = $8 RETURNING updated_at`,
		c.FileID, nullable(c.Name), nullable(c.Email), nullable(c.Phone), nullable(c.ExtractedCVJSON),
		string(c.Status), nullable(c.OriginalFilePath), c.ID,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("candidate", c.ID)
	}
	if err != nil {
		return fmt.Errorf("update candidate %d: %w", c.ID, err)
	}
	return nil
}

// --- job descriptions ---

func (s *Store) CreateJobs(ctx context.Context, jobs []*model.JobDescription) error {
	if len(jobs) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, j := range jobs {
			err := tx.QueryRow(ctx,
				`INSERT INTO job_descriptions (job_title, raw_description, structured_summary_json, status)
				 VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
				j.Title, j.RawDescription, nullable(j.StructuredSummaryJSON), string(j.Status),
			).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert job %q: %w", j.Title, err)
			}
		}
		return nil
	})
}

func (s *Store) GetJob(ctx context.Context, id int64) (*model.JobDescription, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_descriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job description", id)
	}
	return j, err
}

func (s *Store) JobExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM job_descriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("job exists %d: %w", id, err)
	}
	return exists, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*model.JobDescription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM job_descriptions ORDER BY id`)
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
	err := s.pool.QueryRow(ctx,
		`UPDATE job_descriptions SET job_title = $1, raw_description = $2, structured_summary_json = $3, status = $4, updated_at = now()
		 WHERE id = $5 RETURNING updated_at`,
		j.Title, j.RawDescription, nullable(j.StructuredSummaryJSON), string(j.Status), j.ID,
	).Scan(&j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("job description", j.ID)
	}
	if err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	return nil
}

// --- applications ---

func (s *Store) FindOrCreateApplication(ctx context.Context, jobID, candidateID int64) (*model.Application, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (job_description_id, candidate_id, status) VALUES ($1, $2, $3)
		 ON CONFLICT (job_description_id, candidate_id) DO NOTHING`,
		jobID, candidateID, string(model.ApplicationMatchingStarted),
	)
	if err != nil {
		return nil, fmt.Errorf("insert application (%d, %d): %w", jobID, candidateID, err)
	}

	return scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE job_description_id = $1 AND candidate_id = $2`,
		jobID, candidateID))
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
		args = append(args, filter.JobID)
		where = append(where, fmt.Sprintf(`job_description_id = $%d`, len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf(`status = $%d`, len(args)))
	}
	if filter.MinScore != nil {
		args = append(args, *filter.MinScore)
		where = append(where, fmt.Sprintf(`match_score >= $%d`, len(args)))
	}

	query := `SELECT ` + applicationColumns + ` FROM applications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
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

const updateApplication = `UPDATE applications SET match_score = $1, match_justification = $2, status = $3, updated_at = now()
	WHERE id = $4 RETURNING updated_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func saveApplication(ctx context.Context, q querier, a *model.Application) error {
	err := q.QueryRow(ctx, updateApplication,
		a.MatchScore, nullable(a.MatchJustification), string(a.Status), a.ID,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("application", a.ID)
	}
	if err != nil {
		return fmt.Errorf("update application %d: %w", a.ID, err)
	}
	return nil
}

func (s *Store) SaveApplication(ctx context.Context, a *model.Application) error {
	return saveApplication(ctx, s.pool, a)
}

func (s *Store) SaveApplications(ctx context.Context, apps []*model.Application) error {
	if len(apps) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, a := range apps {
			if err := saveApplication(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanCandidate(row pgx.Row) (*model.Candidate, error) {
	var (
		c      model.Candidate
		status string
	)
	err := row.Scan(&c.ID, &c.FileID, &c.Name, &c.Email, &c.Phone, &c.ExtractedCVJSON, &status,
		&c.OriginalFilePath, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CandidateStatus(status)
	return &c, nil
}

func scanJob(row pgx.Row) (*model.JobDescription, error) {
	var (
		j      model.JobDescription
		status string
	)
	if err := row.Scan(&j.ID, &j.Title, &j.RawDescription, &j.StructuredSummaryJSON, &status, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func scanApplication(row pgx.Row) (*model.Application, error) {
	var (
		a      model.Application
		status string
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.CandidateID, &a.MatchScore, &a.MatchJustification, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = model.ApplicationStatus(status)
	return &a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
