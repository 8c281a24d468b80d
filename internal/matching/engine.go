// Package matching scores parsed candidates against summarized jobs and
// promotes the best of them to the shortlist.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/prompts"
	"github.com/spigell/cv-screener/internal/store"
)

const (
	DefaultThreshold = 80.0

	failurePrefix   = "Error during matching: "
	recoveryTimeout = 10 * time.Second
)

// Store is the part of the entity store the engine works with.
type Store interface {
	store.CandidateStore
	store.JobStore
	store.ApplicationStore
}

type Options struct {
	Store            Store
	Generator        ai.Generator
	DefaultThreshold float64
	MaxLogLength     int
}

type Engine struct {
	store     Store
	generator ai.Generator
	threshold float64
	maxLogLen int
	logger    *zap.Logger
}

// Outcome tallies a batch run. Err joins the per-candidate failures.
type Outcome struct {
	RunID     uuid.UUID
	Succeeded int
	Failed    int
	Err       error
}

func New(opts Options, log *zap.Logger) *Engine {
	threshold := opts.DefaultThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = 200
	}
	return &Engine{
		store:     opts.Store,
		generator: opts.Generator,
		threshold: threshold,
		maxLogLen: maxLogLen,
		logger:    logger.OrNop(log),
	}
}

// Match scores one candidate for one job. Only missing entities and stages
// that have not completed yet are returned as errors; generation and parsing
// failures end up on the returned application as ERROR_MATCHING.
func (e *Engine) Match(ctx context.Context, jobID, candidateID int64) (*model.Application, error) {
	job, err := e.matchableJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	cand, err := e.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if !cand.IsParsed() {
		return nil, apperr.New(apperr.ErrStatePrecondition, "match",
			"candidate %d is not parsed (status %s)", candidateID, cand.Status)
	}
	return e.match(ctx, job, cand)
}

func (e *Engine) match(ctx context.Context, job *model.JobDescription, cand *model.Candidate) (*model.Application, error) {
	app, err := e.store.FindOrCreateApplication(ctx, job.ID, cand.ID)
	if err != nil {
		return nil, fmt.Errorf("find application for job %d and candidate %d: %w", job.ID, cand.ID, err)
	}
	log := e.logger.With(logger.Application(app.ID, job.ID, cand.ID)...)

	if err := app.SetStatus(model.ApplicationMatchingStarted); err != nil {
		return nil, err
	}
	if err := e.store.SaveApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("mark application %d as matching: %w", app.ID, err)
	}

	result, matchErr := e.score(ctx, job, cand, log)
	if matchErr != nil {
		log.Error("matching failed", zap.Error(matchErr))
		if err := app.RecordMatchFailure(failurePrefix + matchErr.Error()); err != nil {
			return nil, err
		}
	} else {
		if err := app.RecordMatch(float64(result.Score), result.Justification); err != nil {
			return nil, err
		}
		log.Info("candidate matched", zap.Int("score", result.Score))
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()
	if err := e.store.SaveApplication(saveCtx, app); err != nil {
		return nil, fmt.Errorf("save application %d: %w", app.ID, err)
	}
	return app, nil
}

func (e *Engine) score(ctx context.Context, job *model.JobDescription, cand *model.Candidate, log *zap.Logger) (model.MatchResult, error) {
	prompt := prompts.Match(job.StructuredSummaryJSON, cand.ExtractedCVJSON)
	log.Debug("sending match prompt", logger.Prompt(prompt, e.maxLogLen)...)

	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return model.MatchResult{}, err
	}
	log.Debug("match response", logger.Response(raw, e.maxLogLen)...)
	return ai.ParseMatch(raw)
}

// MatchAll matches every parsed candidate against the job, one after another.
// A failing candidate never stops the batch.
func (e *Engine) MatchAll(ctx context.Context, jobID int64) (Outcome, error) {
	job, err := e.matchableJob(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}

	candidates, err := e.store.ListCandidates(ctx, store.CandidateFilter{Status: model.CandidateParsed})
	if err != nil {
		return Outcome{}, fmt.Errorf("list parsed candidates: %w", err)
	}

	out := Outcome{RunID: uuid.New()}
	log := e.logger.With(zap.Int64(logger.FieldJobID, jobID), zap.String("run_id", out.RunID.String()))
	log.Info("batch matching started", zap.Int("candidates", len(candidates)))

	for _, cand := range candidates {
		if !cand.IsParsed() {
			continue
		}
		if err := e.matchOne(ctx, job, cand); err != nil {
			out.Failed++
			out.Err = multierr.Append(out.Err, fmt.Errorf("candidate %d: %w", cand.ID, err))
			continue
		}
		out.Succeeded++
	}

	log.Info("batch matching finished", zap.Int("succeeded", out.Succeeded), zap.Int("failed", out.Failed))
	return out, nil
}

func (e *Engine) matchOne(ctx context.Context, job *model.JobDescription, cand *model.Candidate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while matching: %v", r)
		}
	}()

	app, err := e.match(ctx, job, cand)
	if err != nil {
		return err
	}
	if app.Status == model.ApplicationErrorMatching {
		return errors.New(app.MatchJustification)
	}
	return nil
}

// Shortlist promotes every MATCHED application of the job scoring at least
// threshold. A nil threshold uses the configured default.
func (e *Engine) Shortlist(ctx context.Context, jobID int64, threshold *float64) ([]*model.Application, error) {
	exists, err := e.store.JobExists(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("job description", jobID)
	}

	cutoff := e.threshold
	if threshold != nil {
		cutoff = *threshold
	}
	if math.IsNaN(cutoff) || math.IsInf(cutoff, 0) {
		return nil, apperr.New(apperr.ErrStatePrecondition, "shortlist", "threshold %v is not a finite number", cutoff)
	}

	apps, err := e.store.ListApplications(ctx, store.ApplicationFilter{
		JobID:    jobID,
		Status:   model.ApplicationMatched,
		MinScore: &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("list matched applications: %w", err)
	}

	shortlisted := make([]*model.Application, 0, len(apps))
	for _, app := range apps {
		if app.MatchScore == nil || *app.MatchScore < cutoff {
			continue
		}
		if err := app.SetStatus(model.ApplicationShortlisted); err != nil {
			return nil, err
		}
		shortlisted = append(shortlisted, app)
	}

	if len(shortlisted) > 0 {
		if err := e.store.SaveApplications(ctx, shortlisted); err != nil {
			return nil, fmt.Errorf("save shortlisted applications: %w", err)
		}
	}

	e.logger.Info("applications shortlisted",
		zap.Int64(logger.FieldJobID, jobID),
		zap.Float64("threshold", cutoff),
		zap.Int("count", len(shortlisted)),
	)
	return shortlisted, nil
}

func (e *Engine) matchableJob(ctx context.Context, jobID int64) (*model.JobDescription, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsSummarized() {
		return nil, apperr.New(apperr.ErrStatePrecondition, "match",
			"job %d is not summarized (status %s)", jobID, job.Status)
	}
	return job, nil
}
