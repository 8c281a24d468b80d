// Package jobs loads job descriptions and summarizes them into structured
// requirements.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/jobcsv"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/prompts"
	"github.com/spigell/cv-screener/internal/store"
)

const (
	summaryErrorPrefix = "Error processing summary: "
	failureTimeout     = 10 * time.Second
)

type CSVParser interface {
	Parse(r io.Reader) ([]jobcsv.Row, error)
}

type Service struct {
	store     store.JobStore
	parser    CSVParser
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewService(st store.JobStore, parser CSVParser, generator ai.Generator, maxLogLen int, log *zap.Logger) *Service {
	if maxLogLen <= 0 {
		maxLogLen = 200
	}
	return &Service{
		store:     st,
		parser:    parser,
		generator: generator,
		logger:    logger.OrNop(log),
		maxLogLen: maxLogLen,
	}
}

// LoadFromCSV creates a NEW job for every usable row of r and returns them.
func (s *Service) LoadFromCSV(ctx context.Context, r io.Reader) ([]*model.JobDescription, error) {
	rows, err := s.parser.Parse(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.logger.Warn("no valid job descriptions found in csv")
		return []*model.JobDescription{}, nil
	}

	jobs := make([]*model.JobDescription, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, &model.JobDescription{
			Title:          row.Title,
			RawDescription: row.RawDescription,
			Status:         model.JobNew,
		})
	}

	if err := s.store.CreateJobs(ctx, jobs); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}

	s.logger.Info("job descriptions loaded", zap.Int("count", len(jobs)))
	return jobs, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.JobDescription, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.JobDescription, error) {
	return s.store.ListJobs(ctx)
}

// Summarize produces the structured summary of a job. A job that already
// holds a valid summary is returned as is without calling the generator.
// Failures are stored on the job and returned.
func (s *Service) Summarize(ctx context.Context, id int64) (*model.JobDescription, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.Int64(logger.FieldJobID, id))

	if job.HasValidSummary() {
		log.Info("job already summarized, skipping generation")
		return job, nil
	}

	if strings.TrimSpace(job.RawDescription) == "" {
		job.StructuredSummaryJSON = ""
		if err := s.fail(ctx, job); err != nil {
			return nil, err
		}
		return job, apperr.New(apperr.ErrStatePrecondition, "summarize job", "job %d has an empty description", id)
	}

	raw, genErr := s.generator.GenerateContent(ctx, prompts.JobSummary(job.RawDescription))
	var normalized string
	if genErr == nil {
		log.Debug("job summary response", logger.Response(raw, s.maxLogLen)...)
		normalized, genErr = ai.NormalizeJSON(raw)
	}
	if genErr == nil {
		genErr = validateObject(normalized)
	}

	if genErr != nil {
		log.Error("job summarization failed", zap.Error(genErr))
		job.StructuredSummaryJSON = normalized
		if normalized == "" {
			job.StructuredSummaryJSON = summaryErrorPrefix + genErr.Error()
		}
		if err := s.fail(ctx, job); err != nil {
			return nil, errors.Join(genErr, err)
		}
		if errors.Is(genErr, apperr.ErrGeneration) {
			return job, fmt.Errorf("summarize job %d: %w", id, genErr)
		}
		return job, apperr.Wrap(apperr.ErrGeneration, fmt.Sprintf("summarize job %d", id), genErr)
	}

	job.StructuredSummaryJSON = normalized
	if err := job.SetStatus(model.JobSummarized); err != nil {
		return nil, err
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save summarized job %d: %w", id, err)
	}

	log.Info("job summarized")
	return job, nil
}

// fail records ERROR_SUMMARIZING even when ctx is already cancelled.
func (s *Service) fail(ctx context.Context, job *model.JobDescription) error {
	if err := job.SetStatus(model.JobErrorSummarizing); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureTimeout)
	defer cancel()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save failed job %d: %w", job.ID, err)
	}
	return nil
}

func validateObject(s string) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return apperr.Wrap(apperr.ErrGeneration, "validate summary json", err)
	}
	return nil
}
