package model

import (
	"fmt"

	"github.com/spigell/cv-screener/internal/apperr"
)

// CandidateStatus tracks a candidate through CV ingestion.
type CandidateStatus string

const (
	CandidateUploaded     CandidateStatus = "UPLOADED"
	CandidateParsing      CandidateStatus = "PARSING"
	CandidateParsed       CandidateStatus = "PARSED"
	CandidateErrorParsing CandidateStatus = "ERROR_PARSING"
)

// JobStatus tracks a job description through summarization.
type JobStatus string

const (
	JobNew              JobStatus = "NEW"
	JobSummarized       JobStatus = "SUMMARIZED"
	JobErrorSummarizing JobStatus = "ERROR_SUMMARIZING"
)

// ApplicationStatus tracks a job/candidate pair from matching to invitation.
type ApplicationStatus string

const (
	ApplicationMatchingStarted    ApplicationStatus = "MATCHING_STARTED"
	ApplicationMatched            ApplicationStatus = "MATCHED"
	ApplicationErrorMatching      ApplicationStatus = "ERROR_MATCHING"
	ApplicationShortlisted        ApplicationStatus = "SHORTLISTED"
	ApplicationInterviewScheduled ApplicationStatus = "INTERVIEW_SCHEDULED"
	ApplicationErrorMissingData   ApplicationStatus = "ERROR_MISSING_DATA"
	ApplicationErrorMissingEmail  ApplicationStatus = "ERROR_MISSING_EMAIL"
	ApplicationErrorDraftingEmail ApplicationStatus = "ERROR_DRAFTING_EMAIL"
	ApplicationErrorSendingEmail  ApplicationStatus = "ERROR_SENDING_EMAIL"
)

// CandidateStatuses lists the closed vocabulary in lifecycle order.
var CandidateStatuses = []CandidateStatus{
	CandidateUploaded, CandidateParsing, CandidateParsed, CandidateErrorParsing,
}

// JobStatuses lists the closed vocabulary in lifecycle order.
var JobStatuses = []JobStatus{JobNew, JobSummarized, JobErrorSummarizing}

// ApplicationStatuses lists the closed vocabulary in lifecycle order.
var ApplicationStatuses = []ApplicationStatus{
	ApplicationMatchingStarted, ApplicationMatched, ApplicationErrorMatching,
	ApplicationShortlisted, ApplicationInterviewScheduled,
	ApplicationErrorMissingData, ApplicationErrorMissingEmail,
	ApplicationErrorDraftingEmail, ApplicationErrorSendingEmail,
}

func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidateUploaded, CandidateParsing, CandidateParsed, CandidateErrorParsing:
		return true
	}
	return false
}

// CanTransition reports whether a candidate may move from s to next.
// A re-upload resets any state back to UPLOADED.
func (s CandidateStatus) CanTransition(next CandidateStatus) bool {
	if next == CandidateUploaded {
		return true
	}
	switch s {
	case CandidateUploaded:
		return next == CandidateParsing || next == CandidateErrorParsing
	case CandidateParsing:
		return next == CandidateParsing || next == CandidateParsed || next == CandidateErrorParsing
	case CandidateErrorParsing:
		return next == CandidateParsing || next == CandidateErrorParsing
	case CandidateParsed:
		return false
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobNew, JobSummarized, JobErrorSummarizing:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobNew, JobErrorSummarizing:
		return next == JobSummarized || next == JobErrorSummarizing
	case JobSummarized:
		// a stored summary that no longer parses is summarized again
		return next == JobSummarized || next == JobErrorSummarizing
	}
	return false
}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationMatchingStarted, ApplicationMatched, ApplicationErrorMatching,
		ApplicationShortlisted, ApplicationInterviewScheduled,
		ApplicationErrorMissingData, ApplicationErrorMissingEmail,
		ApplicationErrorDraftingEmail, ApplicationErrorSendingEmail:
		return true
	}
	return false
}

// CanTransition reports whether an application may move from s to next.
// Matching may be restarted from any state; the empty status is a row that
// has not been persisted yet.
func (s ApplicationStatus) CanTransition(next ApplicationStatus) bool {
	if next == ApplicationMatchingStarted {
		return true
	}
	switch s {
	case ApplicationMatchingStarted:
		return next == ApplicationMatched || next == ApplicationErrorMatching
	case ApplicationMatched:
		return next == ApplicationShortlisted
	case ApplicationShortlisted:
		switch next {
		case ApplicationInterviewScheduled, ApplicationErrorMissingData, ApplicationErrorMissingEmail,
			ApplicationErrorDraftingEmail, ApplicationErrorSendingEmail:
			return true
		}
	case ApplicationErrorMatching, ApplicationInterviewScheduled,
		ApplicationErrorMissingData, ApplicationErrorMissingEmail,
		ApplicationErrorDraftingEmail, ApplicationErrorSendingEmail, "":
		return false
	}
	return false
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

// Is classifies transition errors as state precondition failures.
func (e *TransitionError) Is(target error) bool {
	return target == apperr.ErrStatePrecondition
}
