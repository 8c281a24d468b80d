package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

// applicationView is an application together with the names of its pair.
type applicationView struct {
	ID                 int64                   `json:"id"`
	JobID              int64                   `json:"jobId"`
	JobTitle           string                  `json:"jobTitle,omitempty"`
	CandidateID        int64                   `json:"candidateId"`
	CandidateName      string                  `json:"candidateName,omitempty"`
	CandidateFileID    string                  `json:"candidateFileId,omitempty"`
	MatchScore         *float64                `json:"matchScore"`
	MatchJustification string                  `json:"matchJustification,omitempty"`
	Status             model.ApplicationStatus `json:"status"`
}

// viewer resolves job and candidate names once per request.
type viewer struct {
	store      Store
	jobs       map[int64]*model.JobDescription
	candidates map[int64]*model.Candidate
}

func newViewer(st Store) *viewer {
	return &viewer{
		store:      st,
		jobs:       map[int64]*model.JobDescription{},
		candidates: map[int64]*model.Candidate{},
	}
}

func (v *viewer) view(ctx context.Context, app *model.Application) (applicationView, error) {
	out := applicationView{
		ID:                 app.ID,
		JobID:              app.JobID,
		CandidateID:        app.CandidateID,
		MatchScore:         app.MatchScore,
		MatchJustification: app.MatchJustification,
		Status:             app.Status,
	}

	job, ok := v.jobs[app.JobID]
	if !ok {
		var err error
		job, err = v.store.GetJob(ctx, app.JobID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return out, err
		}
		v.jobs[app.JobID] = job
	}
	if job != nil {
		out.JobTitle = job.Title
	}

	cand, ok := v.candidates[app.CandidateID]
	if !ok {
		var err error
		cand, err = v.store.GetCandidate(ctx, app.CandidateID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return out, err
		}
		v.candidates[app.CandidateID] = cand
	}
	if cand != nil {
		out.CandidateName = cand.Name
		out.CandidateFileID = cand.FileID
	}
	return out, nil
}

func (v *viewer) views(ctx context.Context, apps []*model.Application) ([]applicationView, error) {
	out := make([]applicationView, 0, len(apps))
	for _, app := range apps {
		view, err := v.view(ctx, app)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Server) listApplications(c *fiber.Ctx) error {
	ctx := c.UserContext()
	jobID, err := queryID(c, "jobId")
	if err != nil {
		return err
	}
	exists, err := s.deps.Store.JobExists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("job description", jobID)
	}

	apps, err := s.deps.Store.ListApplications(ctx, store.ApplicationFilter{JobID: jobID})
	if err != nil {
		return err
	}
	views, err := newViewer(s.deps.Store).views(ctx, apps)
	if err != nil {
		return err
	}
	return c.JSON(views)
}

func (s *Server) getApplication(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	app, err := s.deps.Store.GetApplication(c.UserContext(), id)
	if err != nil {
		return err
	}
	view, err := newViewer(s.deps.Store).view(c.UserContext(), app)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) matchPair(c *fiber.Ctx) error {
	jobID, err := queryID(c, "jobId")
	if err != nil {
		return err
	}
	candidateID, err := queryID(c, "candidateId")
	if err != nil {
		return err
	}

	app, err := s.deps.Matcher.Match(c.UserContext(), jobID, candidateID)
	if err != nil {
		return err
	}
	view, err := newViewer(s.deps.Store).view(c.UserContext(), app)
	if err != nil {
		return err
	}
	return c.JSON(view)
}
