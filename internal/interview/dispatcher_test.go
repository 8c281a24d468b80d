package interview

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/mail"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store/sqlite"
)

type stubMailer struct {
	sent   []mail.Message
	failTo string
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) error {
	if msg.To == m.failTo {
		return apperr.New(apperr.ErrTransport, "send mail", "connection refused")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fixture struct {
	db  *sqlite.Store
	job *model.JobDescription
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "invite.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	job := &model.JobDescription{Title: "Backend Engineer", RawDescription: "Go", StructuredSummaryJSON: "{}", Status: model.JobSummarized}
	if err := db.CreateJobs(context.Background(), []*model.JobDescription{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return &fixture{db: db, job: job}
}

// shortlisted creates a candidate with an application in SHORTLISTED.
func (f *fixture) shortlisted(t *testing.T, fileID, name, email string) *model.Application {
	t.Helper()
	ctx := context.Background()

	cand := &model.Candidate{FileID: fileID, Name: name, Email: email, ExtractedCVJSON: "{}", Status: model.CandidateParsed}
	if err := f.db.CreateCandidate(ctx, cand); err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	app, err := f.db.FindOrCreateApplication(ctx, f.job.ID, cand.ID)
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if err := app.RecordMatch(90, "good"); err != nil {
		t.Fatalf("record match: %v", err)
	}
	if err := app.SetStatus(model.ApplicationShortlisted); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if err := f.db.SaveApplication(ctx, app); err != nil {
		t.Fatalf("save application: %v", err)
	}
	return app
}

func (f *fixture) status(t *testing.T, id int64) model.ApplicationStatus {
	t.Helper()
	app, err := f.db.GetApplication(context.Background(), id)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	return app.Status
}

func TestSendInvitationsIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ok := f.shortlisted(t, "C1", "Jane Doe", "jane@example.com")
	anonymous := f.shortlisted(t, "C2", "", "anon@example.com")
	noEmail := f.shortlisted(t, "C3", "No Mail", "")
	badEmail := f.shortlisted(t, "C4", "Typo", "not-an-address")
	bounce := f.shortlisted(t, "C5", "Bounce", "bounce@example.com")
	emptyDraft := f.shortlisted(t, "C6", "Silent", "silent@example.com")
	failDraft := f.shortlisted(t, "C7", "Down", "down@example.com")

	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Candidate Name: Silent"):
			return "   ", nil
		case strings.Contains(prompt, "Candidate Name: Down"):
			return "", apperr.New(apperr.ErrGeneration, "generate", "503")
		}
		return "We would like to invite you to an interview.", nil
	})
	mailer := &stubMailer{failTo: "bounce@example.com"}

	d := NewDispatcher(Options{Store: f.db, Generator: gen, Mailer: mailer, From: "hr@example.com", Company: "Acme"}, zap.NewNop())
	res, err := d.SendInvitations(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Sent) != 2 || res.Failed != 5 {
		t.Fatalf("unexpected result: sent=%d failed=%d", len(res.Sent), res.Failed)
	}
	if res.Err == nil {
		t.Fatal("expected aggregated error")
	}

	want := map[int64]model.ApplicationStatus{
		ok.ID:         model.ApplicationInterviewScheduled,
		anonymous.ID:  model.ApplicationInterviewScheduled,
		noEmail.ID:    model.ApplicationErrorMissingEmail,
		badEmail.ID:   model.ApplicationErrorMissingEmail,
		bounce.ID:     model.ApplicationErrorSendingEmail,
		emptyDraft.ID: model.ApplicationErrorDraftingEmail,
		failDraft.ID:  model.ApplicationErrorDraftingEmail,
	}
	for id, status := range want {
		if got := f.status(t, id); got != status {
			t.Fatalf("application %d: expected %s, got %s", id, status, got)
		}
	}

	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", len(mailer.sent))
	}
	first := mailer.sent[0]
	if first.From != "hr@example.com" || first.To != "jane@example.com" {
		t.Fatalf("unexpected envelope: %+v", first)
	}
	if first.Subject != "Interview Invitation: Backend Engineer at Acme" {
		t.Fatalf("unexpected subject %q", first.Subject)
	}
	if !strings.HasPrefix(first.Body, "Dear Jane Doe,\n\nWe would like") {
		t.Fatalf("unexpected body:\n%s", first.Body)
	}
	if !strings.HasPrefix(mailer.sent[1].Body, "Dear Candidate,") {
		t.Fatalf("expected default salutation:\n%s", mailer.sent[1].Body)
	}
}

func TestSendInvitationsSkipsOtherStatuses(t *testing.T) {
	f := newFixture(t)
	app := f.shortlisted(t, "C1", "Jane", "jane@example.com")

	ctx := context.Background()
	cand := &model.Candidate{FileID: "C2", Email: "matched@example.com", ExtractedCVJSON: "{}", Status: model.CandidateParsed}
	if err := f.db.CreateCandidate(ctx, cand); err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	matched, err := f.db.FindOrCreateApplication(ctx, f.job.ID, cand.ID)
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if err := matched.RecordMatch(50, "meh"); err != nil {
		t.Fatalf("record match: %v", err)
	}
	if err := f.db.SaveApplication(ctx, matched); err != nil {
		t.Fatalf("save: %v", err)
	}

	mailer := &stubMailer{}
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) { return "Hello", nil })
	d := NewDispatcher(Options{Store: f.db, Generator: gen, Mailer: mailer, From: "hr@example.com"}, nil)

	res, err := d.SendInvitations(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Sent) != 1 || res.Sent[0].ID != app.ID {
		t.Fatalf("expected only the shortlisted application, got %+v", res.Sent)
	}
	if f.status(t, matched.ID) != model.ApplicationMatched {
		t.Fatal("matched application must be left alone")
	}
	if !strings.Contains(mailer.sent[0].Subject, "at AI Corp") {
		t.Fatalf("expected default company, got %q", mailer.sent[0].Subject)
	}

	again, err := d.SendInvitations(ctx, f.job.ID)
	if err != nil || len(again.Sent) != 0 || again.Failed != 0 {
		t.Fatalf("second run should find nothing to send: %+v %v", again, err)
	}
}

// lossyStore fails GetCandidate for one candidate.
type lossyStore struct {
	*sqlite.Store
	candidateID int64
	err         error
}

func (s lossyStore) GetCandidate(ctx context.Context, id int64) (*model.Candidate, error) {
	if id == s.candidateID {
		return nil, s.err
	}
	return s.Store.GetCandidate(ctx, id)
}

func TestSendInvitationsCandidateLookupFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect model.ApplicationStatus
	}{
		{name: "candidate gone", err: apperr.NotFound("candidate", 1), expect: model.ApplicationErrorMissingData},
		{name: "store unavailable", err: errors.New("database is locked"), expect: model.ApplicationShortlisted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			app := f.shortlisted(t, "C1", "Jane Doe", "jane@example.com")
			mailer := &stubMailer{}
			gen := ai.GeneratorFunc(func(context.Context, string) (string, error) { return "Come by.", nil })

			st := lossyStore{Store: f.db, candidateID: app.CandidateID, err: tt.err}
			d := NewDispatcher(Options{Store: st, Generator: gen, Mailer: mailer, From: "hr@example.com"}, zap.NewNop())
			res, err := d.SendInvitations(context.Background(), f.job.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Failed != 1 || len(res.Sent) != 0 || len(mailer.sent) != 0 {
				t.Fatalf("unexpected result: sent=%d failed=%d mails=%d", len(res.Sent), res.Failed, len(mailer.sent))
			}
			if !errors.Is(res.Err, tt.err) {
				t.Fatalf("expected lookup error to be reported, got %v", res.Err)
			}
			if got := f.status(t, app.ID); got != tt.expect {
				t.Fatalf("expected %s, got %s", tt.expect, got)
			}
		})
	}
}

func TestSendInvitationsMissingJob(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(Options{Store: f.db}, zap.NewNop())
	if _, err := d.SendInvitations(context.Background(), f.job.ID+100); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBody(t *testing.T) {
	got := Body("Jane", "See you soon.", "Acme")
	want := "Dear Jane,\n\nSee you soon.\n\nPlease let us know your availability or if you have any questions.\n\nBest regards,\nThe Acme Hiring Team\n"
	if got != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", got, want)
	}
	if s := Subject("QA", "Acme"); s != fmt.Sprintf("Interview Invitation: %s at %s", "QA", "Acme") {
		t.Fatalf("unexpected subject %q", s)
	}
}
