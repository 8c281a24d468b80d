// Package interview drafts and sends interview invitations to shortlisted
// candidates.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/mail"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/prompts"
	"github.com/spigell/cv-screener/internal/store"
)

const (
	DefaultCompany = "AI Corp"

	defaultCandidateName = "Candidate"
	statusWriteTimeout   = 10 * time.Second
)

type Mailer interface {
	Send(ctx context.Context, m mail.Message) error
}

// Store is the part of the entity store the dispatcher works with.
type Store interface {
	store.CandidateStore
	store.JobStore
	store.ApplicationStore
}

type Options struct {
	Store     Store
	Generator ai.Generator
	Mailer    Mailer
	From      string
	Company   string
}

type Dispatcher struct {
	store     Store
	generator ai.Generator
	mailer    Mailer
	from      string
	company   string
	logger    *zap.Logger
}

// Result reports a dispatch run. Err joins the per-application failures.
type Result struct {
	Sent   []*model.Application
	Failed int
	Err    error
}

func NewDispatcher(opts Options, log *zap.Logger) *Dispatcher {
	company := strings.TrimSpace(opts.Company)
	if company == "" {
		company = DefaultCompany
	}
	return &Dispatcher{
		store:     opts.Store,
		generator: opts.Generator,
		mailer:    opts.Mailer,
		from:      opts.From,
		company:   company,
		logger:    logger.OrNop(log),
	}
}

// SendInvitations invites every shortlisted candidate of the job. Each
// application is handled and persisted on its own; a failure is recorded on
// that application and the run moves on.
func (d *Dispatcher) SendInvitations(ctx context.Context, jobID int64) (Result, error) {
	exists, err := d.store.JobExists(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, apperr.NotFound("job description", jobID)
	}

	apps, err := d.store.ListApplications(ctx, store.ApplicationFilter{
		JobID:  jobID,
		Status: model.ApplicationShortlisted,
	})
	if err != nil {
		return Result{}, fmt.Errorf("list shortlisted applications: %w", err)
	}

	res := Result{Sent: make([]*model.Application, 0, len(apps))}
	for _, app := range apps {
		if err := d.invite(ctx, app); err != nil {
			res.Failed++
			res.Err = multierr.Append(res.Err, fmt.Errorf("application %d: %w", app.ID, err))
			continue
		}
		res.Sent = append(res.Sent, app)
	}

	d.logger.Info("interview invitations processed",
		zap.Int64(logger.FieldJobID, jobID),
		zap.Int("sent", len(res.Sent)),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (d *Dispatcher) invite(ctx context.Context, app *model.Application) (err error) {
	log := d.logger.With(logger.Application(app.ID, app.JobID, app.CandidateID)...)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while inviting: %v", r)
			log.Error("invitation panicked", zap.Any("panic", r))
		}
	}()

	status, sendErr := d.deliver(ctx, app, log)
	if status == unchanged {
		log.Error("invitation skipped, application stays shortlisted", zap.Error(sendErr))
		return sendErr
	}
	if sendErr != nil {
		log.Error("invitation failed", zap.String(logger.FieldStatus, string(status)), zap.Error(sendErr))
	}
	if err := d.writeStatus(ctx, app, status); err != nil {
		log.Error("failed to record invitation status", zap.Error(err))
		return multierr.Append(sendErr, err)
	}
	if sendErr == nil {
		log.Info("interview invitation sent")
	}
	return sendErr
}

// unchanged means the application keeps its status, so a later run retries it.
const unchanged model.ApplicationStatus = ""

// deliver returns the status the application ends in and the failure, if any.
func (d *Dispatcher) deliver(ctx context.Context, app *model.Application, log *zap.Logger) (model.ApplicationStatus, error) {
	cand, err := d.store.GetCandidate(ctx, app.CandidateID)
	if err != nil {
		return missingData("load candidate", err)
	}
	job, err := d.store.GetJob(ctx, app.JobID)
	if err != nil {
		return missingData("load job description", err)
	}

	email := strings.TrimSpace(cand.Email)
	if email == "" || !strings.Contains(email, "@") {
		return model.ApplicationErrorMissingEmail, apperr.New(apperr.ErrStatePrecondition, "invite",
			"candidate %d has no usable email", cand.ID)
	}

	name := strings.TrimSpace(cand.Name)
	if name == "" {
		name = defaultCandidateName
	}

	draft, err := d.generator.GenerateContent(ctx, prompts.InterviewEmail(name, job.Title, d.company))
	if err != nil {
		return model.ApplicationErrorDraftingEmail, err
	}
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return model.ApplicationErrorDraftingEmail, apperr.New(apperr.ErrGeneration, "draft invitation", "empty draft")
	}
	log.Debug("invitation drafted", zap.Int("length", len(draft)))

	msg := mail.Message{
		From:    d.from,
		To:      email,
		Subject: Subject(job.Title, d.company),
		Body:    Body(name, draft, d.company),
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return model.ApplicationErrorSendingEmail, err
	}
	return model.ApplicationInterviewScheduled, nil
}

// missingData maps an absent reference to ERROR_MISSING_DATA. Other store
// failures leave the application alone.
func missingData(op string, err error) (model.ApplicationStatus, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return model.ApplicationErrorMissingData, apperr.Wrap(apperr.ErrStatePrecondition, op, err)
	}
	return unchanged, fmt.Errorf("%s: %w", op, err)
}

func (d *Dispatcher) writeStatus(ctx context.Context, app *model.Application, status model.ApplicationStatus) error {
	if err := app.SetStatus(status); err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	return d.store.SaveApplication(writeCtx, app)
}

func Subject(jobTitle, company string) string {
	return fmt.Sprintf("Interview Invitation: %s at %s", jobTitle, company)
}

// Body wraps a drafted invitation in the fixed salutation and closing.
func Body(name, draft, company string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	b.WriteString(draft)
	b.WriteString("\n\nPlease let us know your availability or if you have any questions.\n\n")
	fmt.Fprintf(&b, "Best regards,\nThe %s Hiring Team\n", company)
	return b.String()
}
