package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (*model.Candidate, error) {
	var (
		c                                model.Candidate
		name, email, phone, cvJSON, path sql.NullString
		status, createdAt, updatedAt     string
	)
	if err := row.Scan(&c.ID, &c.FileID, &name, &email, &phone, &cvJSON, &status, &path, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Name, c.Email, c.Phone = name.String, email.String, phone.String
	c.ExtractedCVJSON, c.OriginalFilePath = cvJSON.String, path.String
	c.Status = model.CandidateStatus(status)

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanJob(row scanner) (*model.JobDescription, error) {
	var (
		j                            model.JobDescription
		summary                      sql.NullString
		status, createdAt, updatedAt string
	)
	if err := row.Scan(&j.ID, &j.Title, &j.RawDescription, &summary, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.StructuredSummaryJSON = summary.String
	j.Status = model.JobStatus(status)

	var err error
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanApplication(row scanner) (*model.Application, error) {
	var (
		a                            model.Application
		score                        sql.NullFloat64
		justification                sql.NullString
		status, createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.CandidateID, &score, &justification, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		v := score.Float64
		a.MatchScore = &v
	}
	a.MatchJustification = justification.String
	a.Status = model.ApplicationStatus(status)

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// nullable stores empty strings as NULL so unique columns such as email
// accept any number of unknown values.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func expectRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}
