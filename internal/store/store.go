// Package store defines persistence for candidates, job descriptions and
// applications. Implementations live in the sqlite and postgres subpackages.
package store

import (
	"context"

	"github.com/spigell/cv-screener/internal/model"
)

type CandidateFilter struct {
	Status model.CandidateStatus
}

type ApplicationFilter struct {
	JobID    int64
	Status   model.ApplicationStatus
	MinScore *float64
}

type CandidateStore interface {
	// CreateCandidate inserts c and fills its ID and timestamps.
	CreateCandidate(ctx context.Context, c *model.Candidate) error
	GetCandidate(ctx context.Context, id int64) (*model.Candidate, error)
	FindCandidateByFileID(ctx context.Context, fileID string) (*model.Candidate, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]*model.Candidate, error)
	SaveCandidate(ctx context.Context, c *model.Candidate) error
}

type JobStore interface {
	// CreateJobs inserts all jobs in one transaction.
	CreateJobs(ctx context.Context, jobs []*model.JobDescription) error
	GetJob(ctx context.Context, id int64) (*model.JobDescription, error)
	JobExists(ctx context.Context, id int64) (bool, error)
	ListJobs(ctx context.Context) ([]*model.JobDescription, error)
	SaveJob(ctx context.Context, j *model.JobDescription) error
}

type ApplicationStore interface {
	// FindOrCreateApplication returns the single application of the pair,
	// inserting it in MATCHING_STARTED when absent.
	FindOrCreateApplication(ctx context.Context, jobID, candidateID int64) (*model.Application, error)
	GetApplication(ctx context.Context, id int64) (*model.Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*model.Application, error)
	SaveApplication(ctx context.Context, a *model.Application) error
	// SaveApplications updates all applications in one transaction.
	SaveApplications(ctx context.Context, apps []*model.Application) error
}

// Store is the full entity store. Missing entities are reported with
// apperr.ErrNotFound.
type Store interface {
	CandidateStore
	JobStore
	ApplicationStore
	Close() error
}
