package model

import (
	"errors"
	"testing"

	"github.com/spigell/cv-screener/internal/apperr"
)

func TestCandidateResetForUpload(t *testing.T) {
	for _, status := range CandidateStatuses {
		t.Run(string(status), func(t *testing.T) {
			c := &Candidate{
				FileID:           "C100",
				Name:             "Jane",
				Email:            "jane@example.com",
				Phone:            "123",
				ExtractedCVJSON:  `{"name":"Jane"}`,
				Status:           status,
				OriginalFilePath: "/old/C100.pdf",
			}

			c.ResetForUpload("/new/C100.pdf")

			if c.Status != CandidateUploaded {
				t.Fatalf("expected UPLOADED, got %s", c.Status)
			}
			if c.Name != "" || c.Email != "" || c.Phone != "" || c.ExtractedCVJSON != "" {
				t.Fatalf("expected derived fields to be cleared: %+v", c)
			}
			if c.OriginalFilePath != "/new/C100.pdf" {
				t.Fatalf("unexpected path %q", c.OriginalFilePath)
			}
		})
	}
}

func TestCandidateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from CandidateStatus
		to   CandidateStatus
		ok   bool
	}{
		{CandidateUploaded, CandidateParsing, true},
		{CandidateParsing, CandidateParsed, true},
		{CandidateParsing, CandidateErrorParsing, true},
		{CandidateUploaded, CandidateParsed, false},
		{CandidateParsed, CandidateParsing, false},
		{CandidateParsed, CandidateUploaded, true},
		{CandidateErrorParsing, CandidateUploaded, true},
	}

	for _, tt := range tests {
		c := &Candidate{Status: tt.from}
		err := c.SetStatus(tt.to)
		if tt.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok {
			if err == nil {
				t.Fatalf("%s -> %s: expected rejection", tt.from, tt.to)
			}
			if !errors.Is(err, apperr.ErrStatePrecondition) {
				t.Fatalf("expected state precondition kind, got %v", err)
			}
			if c.Status != tt.from {
				t.Fatalf("status changed on rejected transition: %s", c.Status)
			}
		}
	}
}

func TestApplicationMatchOutcomesAreExclusive(t *testing.T) {
	app := &Application{Status: ApplicationMatchingStarted}
	if err := app.RecordMatch(87, "strong fit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != ApplicationMatched || app.MatchScore == nil || *app.MatchScore != 87 {
		t.Fatalf("unexpected matched state: %+v", app)
	}

	if err := app.SetStatus(ApplicationMatchingStarted); err != nil {
		t.Fatalf("rematch should be allowed: %v", err)
	}
	if err := app.RecordMatchFailure("generation failed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != ApplicationErrorMatching || app.MatchScore != nil {
		t.Fatalf("expected cleared score on failure: %+v", app)
	}
}

func TestApplicationShortlistRequiresMatched(t *testing.T) {
	app := &Application{Status: ApplicationErrorMatching}
	if err := app.SetStatus(ApplicationShortlisted); err == nil {
		t.Fatal("expected shortlist from ERROR_MATCHING to be rejected")
	}

	app.Status = ApplicationMatched
	if err := app.SetStatus(ApplicationShortlisted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStatusVocabularyIsClosed(t *testing.T) {
	for _, s := range ApplicationStatuses {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if ApplicationStatus("SCHEDULED").Valid() {
		t.Fatal("unknown status must be invalid")
	}
	if CandidateStatus("parsed").Valid() {
		t.Fatal("status vocabulary is case sensitive")
	}
	if JobStatus("").Valid() {
		t.Fatal("empty job status must be invalid")
	}
}

func TestJobHasValidSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  JobDescription
		want bool
	}{
		{name: "valid", job: JobDescription{Status: JobSummarized, StructuredSummaryJSON: `{"required_skills":["Go"]}`}, want: true},
		{name: "not summarized", job: JobDescription{Status: JobNew, StructuredSummaryJSON: `{}`}, want: false},
		{name: "broken json", job: JobDescription{Status: JobSummarized, StructuredSummaryJSON: `{"a":}`}, want: false},
		{name: "array", job: JobDescription{Status: JobSummarized, StructuredSummaryJSON: `[1]`}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.job.HasValidSummary(); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
