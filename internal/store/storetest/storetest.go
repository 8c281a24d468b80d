// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

// Run executes the suite; open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("candidate lifecycle", func(t *testing.T) { testCandidateLifecycle(t, open(t)) })
	t.Run("candidate unique constraints", func(t *testing.T) { testCandidateUnique(t, open(t)) })
	t.Run("jobs", func(t *testing.T) { testJobs(t, open(t)) })
	t.Run("application find or create", func(t *testing.T) { testFindOrCreate(t, open(t)) })
	t.Run("application filters", func(t *testing.T) { testApplicationFilters(t, open(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, open(t)) })
}

// SeedPair creates a summarized job and a parsed candidate.
func SeedPair(t *testing.T, s store.Store, fileID string) (*model.JobDescription, *model.Candidate) {
	t.Helper()
	ctx := context.Background()

	job := &model.JobDescription{Title: "Go Engineer", RawDescription: "Build services", StructuredSummaryJSON: `{"required_skills":["Go"]}`, Status: model.JobSummarized}
	require.NoError(t, s.CreateJobs(ctx, []*model.JobDescription{job}))

	cand := &model.Candidate{FileID: fileID, Status: model.CandidateParsed, ExtractedCVJSON: `{"skills":["Go"]}`}
	require.NoError(t, s.CreateCandidate(ctx, cand))
	return job, cand
}

func testCandidateLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := &model.Candidate{FileID: "C1", Status: model.CandidateUploaded, OriginalFilePath: "/uploads/C1.pdf"}
	require.NoError(t, s.CreateCandidate(ctx, c))
	require.NotZero(t, c.ID)
	require.False(t, c.CreatedAt.IsZero())

	c.Name, c.Email, c.Phone = "Jane", "jane@example.com", "+1 555"
	c.ExtractedCVJSON = `{"name":"Jane"}`
	c.Status = model.CandidateParsed
	require.NoError(t, s.SaveCandidate(ctx, c))

	got, err := s.FindCandidateByFileID(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, "jane@example.com", got.Email)
	require.Equal(t, model.CandidateParsed, got.Status)

	got.ResetForUpload("/uploads/C1.pdf")
	require.NoError(t, s.SaveCandidate(ctx, got))

	reloaded, err := s.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, model.CandidateUploaded, reloaded.Status)
	require.Empty(t, reloaded.Name)
	require.Empty(t, reloaded.Email)
	require.Empty(t, reloaded.ExtractedCVJSON)

	other := &model.Candidate{FileID: "C2", Status: model.CandidateErrorParsing}
	require.NoError(t, s.CreateCandidate(ctx, other))

	all, err := s.ListCandidates(ctx, store.CandidateFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	failed, err := s.ListCandidates(ctx, store.CandidateFilter{Status: model.CandidateErrorParsing})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "C2", failed[0].FileID)
}

func testCandidateUnique(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateCandidate(ctx, &model.Candidate{FileID: "C1", Status: model.CandidateUploaded}))
	require.Error(t, s.CreateCandidate(ctx, &model.Candidate{FileID: "C1", Status: model.CandidateUploaded}))

	// unknown emails never collide
	require.NoError(t, s.CreateCandidate(ctx, &model.Candidate{FileID: "C2", Status: model.CandidateUploaded}))

	a := &model.Candidate{FileID: "C3", Email: "dup@example.com", Status: model.CandidateParsed}
	require.NoError(t, s.CreateCandidate(ctx, a))
	b := &model.Candidate{FileID: "C4", Status: model.CandidateParsing}
	require.NoError(t, s.CreateCandidate(ctx, b))
	b.Email = "dup@example.com"
	require.Error(t, s.SaveCandidate(ctx, b))
}

func testJobs(t *testing.T, s store.Store) {
	ctx := context.Background()

	jobs := []*model.JobDescription{
		{Title: "Backend", RawDescription: "Go", Status: model.JobNew},
		{Title: "Frontend", RawDescription: "TS", Status: model.JobNew},
	}
	require.NoError(t, s.CreateJobs(ctx, jobs))
	require.NotZero(t, jobs[0].ID)
	require.NotEqual(t, jobs[0].ID, jobs[1].ID)

	exists, err := s.JobExists(ctx, jobs[1].ID)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.JobExists(ctx, jobs[1].ID+100)
	require.NoError(t, err)
	require.False(t, exists)

	jobs[0].StructuredSummaryJSON = `{"required_skills":["Go"]}`
	jobs[0].Status = model.JobSummarized
	require.NoError(t, s.SaveJob(ctx, jobs[0]))

	got, err := s.GetJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.JobSummarized, got.Status)
	require.JSONEq(t, `{"required_skills":["Go"]}`, got.StructuredSummaryJSON)

	list, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Backend", list[0].Title)

	require.NoError(t, s.CreateJobs(ctx, nil))
}

func testFindOrCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	job, cand := SeedPair(t, s, "C10")

	first, err := s.FindOrCreateApplication(ctx, job.ID, cand.ID)
	require.NoError(t, err)
	require.Equal(t, model.ApplicationMatchingStarted, first.Status)
	require.Nil(t, first.MatchScore)

	score := 72.0
	first.MatchScore = &score
	first.MatchJustification = "ok"
	first.Status = model.ApplicationMatched
	require.NoError(t, s.SaveApplication(ctx, first))

	second, err := s.FindOrCreateApplication(ctx, job.ID, cand.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, model.ApplicationMatched, second.Status)
	require.NotNil(t, second.MatchScore)
	require.InDelta(t, 72.0, *second.MatchScore, 0.0001)

	all, err := s.ListApplications(ctx, store.ApplicationFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)

	second.MatchScore = nil
	second.Status = model.ApplicationErrorMatching
	require.NoError(t, s.SaveApplication(ctx, second))
	reloaded, err := s.GetApplication(ctx, second.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.MatchScore)
}

func testApplicationFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	job, _ := SeedPair(t, s, "C20")

	var apps []*model.Application
	for i, score := range []float64{60, 80, 95} {
		c := &model.Candidate{FileID: "C2" + string(rune('1'+i)), Status: model.CandidateParsed, ExtractedCVJSON: "{}"}
		require.NoError(t, s.CreateCandidate(ctx, c))
		a, err := s.FindOrCreateApplication(ctx, job.ID, c.ID)
		require.NoError(t, err)
		a.MatchScore = &score
		a.Status = model.ApplicationMatched
		apps = append(apps, a)
	}
	require.NoError(t, s.SaveApplications(ctx, apps))

	threshold := 80.0
	got, err := s.ListApplications(ctx, store.ApplicationFilter{
		JobID:    job.ID,
		Status:   model.ApplicationMatched,
		MinScore: &threshold,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.InDelta(t, 80.0, *got[0].MatchScore, 0.0001)
	require.InDelta(t, 95.0, *got[1].MatchScore, 0.0001)

	none, err := s.ListApplications(ctx, store.ApplicationFilter{JobID: job.ID, Status: model.ApplicationShortlisted})
	require.NoError(t, err)
	require.Empty(t, none)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetCandidate(ctx, 404)
	require.True(t, errors.Is(err, apperr.ErrNotFound), "candidate: %v", err)

	_, err = s.FindCandidateByFileID(ctx, "C404")
	require.True(t, errors.Is(err, apperr.ErrNotFound), "candidate by file: %v", err)

	_, err = s.GetJob(ctx, 404)
	require.True(t, errors.Is(err, apperr.ErrNotFound), "job: %v", err)

	_, err = s.GetApplication(ctx, 404)
	require.True(t, errors.Is(err, apperr.ErrNotFound), "application: %v", err)

	err = s.SaveJob(ctx, &model.JobDescription{ID: 404, Title: "x", RawDescription: "y", Status: model.JobNew})
	require.True(t, errors.Is(err, apperr.ErrNotFound), "save job: %v", err)
}
