// Package model holds the entities of the screening workflow and their
// status state machines.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Candidate struct {
	ID               int64           `json:"id"`
	FileID           string          `json:"candidateIdFromFile"`
	Name             string          `json:"name,omitempty"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	ExtractedCVJSON  string          `json:"extractedCvJson,omitempty"`
	Status           CandidateStatus `json:"status"`
	OriginalFilePath string          `json:"originalFilePath,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ResetForUpload points the candidate at a freshly stored file and drops
// everything derived from the previous one.
func (c *Candidate) ResetForUpload(path string) {
	c.OriginalFilePath = path
	c.Status = CandidateUploaded
	c.Name = ""
	c.Email = ""
	c.Phone = ""
	c.ExtractedCVJSON = ""
}

// SetStatus moves the candidate to next if the transition is allowed.
func (c *Candidate) SetStatus(next CandidateStatus) error {
	if !c.Status.CanTransition(next) {
		return &TransitionError{Entity: "candidate", From: string(c.Status), To: string(next)}
	}
	c.Status = next
	return nil
}

// IsParsed reports whether the candidate has usable structured CV data.
func (c *Candidate) IsParsed() bool {
	return c.Status == CandidateParsed && strings.TrimSpace(c.ExtractedCVJSON) != ""
}

type JobDescription struct {
	ID                    int64     `json:"id"`
	Title                 string    `json:"jobTitle"`
	RawDescription        string    `json:"rawDescription"`
	StructuredSummaryJSON string    `json:"structuredSummaryJson,omitempty"`
	Status                JobStatus `json:"status"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// SetStatus moves the job to next if the transition is allowed.
func (j *JobDescription) SetStatus(next JobStatus) error {
	if !j.Status.CanTransition(next) {
		return &TransitionError{Entity: "job description", From: string(j.Status), To: string(next)}
	}
	j.Status = next
	return nil
}

// HasValidSummary reports whether the job is summarized and its stored
// summary still parses as a JSON object.
func (j *JobDescription) HasValidSummary() bool {
	return j.Status == JobSummarized && IsJSONObject(j.StructuredSummaryJSON)
}

// IsSummarized reports whether the job can take part in matching.
func (j *JobDescription) IsSummarized() bool {
	return j.Status == JobSummarized && strings.TrimSpace(j.StructuredSummaryJSON) != ""
}

type Application struct {
	ID                 int64             `json:"id"`
	JobID              int64             `json:"jobId"`
	CandidateID        int64             `json:"candidateId"`
	MatchScore         *float64          `json:"matchScore"`
	MatchJustification string            `json:"matchJustification,omitempty"`
	Status             ApplicationStatus `json:"status"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// SetStatus moves the application to next if the transition is allowed.
func (a *Application) SetStatus(next ApplicationStatus) error {
	if !a.Status.CanTransition(next) {
		return &TransitionError{Entity: "application", From: string(a.Status), To: string(next)}
	}
	a.Status = next
	return nil
}

// RecordMatch stores a successful score.
func (a *Application) RecordMatch(score float64, justification string) error {
	if err := a.SetStatus(ApplicationMatched); err != nil {
		return err
	}
	a.MatchScore = &score
	a.MatchJustification = justification
	return nil
}

// RecordMatchFailure clears any stale score next to the error status.
func (a *Application) RecordMatchFailure(reason string) error {
	if err := a.SetStatus(ApplicationErrorMatching); err != nil {
		return err
	}
	a.MatchScore = nil
	a.MatchJustification = reason
	return nil
}

// IsJSONObject reports whether s is a well-formed JSON object.
func IsJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	return json.Valid([]byte(s))
}
