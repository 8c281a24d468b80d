// Package prompts renders the text prompts sent to the generation service.
package prompts

import (
	_ "embed"
	"strings"
)

var (
	//go:embed templates/job_summary.md
	jobSummaryTemplate string

	//go:embed templates/cv_extraction.md
	cvExtractionTemplate string

	//go:embed templates/match.md
	matchTemplate string

	//go:embed templates/interview_email.md
	interviewEmailTemplate string
)

const defaultCompany = "AI Corp"

// JobSummary asks for the requirements object of a raw job description.
func JobSummary(rawDescription string) string {
	return render(jobSummaryTemplate, "{{JOB_DESCRIPTION}}", rawDescription)
}

// CVExtraction asks for the candidate fields found in raw resume text.
func CVExtraction(rawText string) string {
	return render(cvExtractionTemplate, "{{RESUME_TEXT}}", rawText)
}

// Match asks for a score and justification of one job/candidate pair.
func Match(jobJSON, cvJSON string) string {
	return render(matchTemplate,
		"{{JOB_JSON}}", jobJSON,
		"{{CV_JSON}}", cvJSON,
	)
}

// InterviewEmail asks for the body of an interview invitation.
func InterviewEmail(candidateName, jobTitle, company string) string {
	if strings.TrimSpace(company) == "" {
		company = defaultCompany
	}
	return render(interviewEmailTemplate,
		"{{COMPANY}}", company,
		"{{CANDIDATE_NAME}}", candidateName,
		"{{JOB_TITLE}}", jobTitle,
	)
}

// render substitutes all placeholders in one pass so values that happen to
// contain a placeholder are never expanded twice.
func render(template string, oldnew ...string) string {
	return strings.NewReplacer(oldnew...).Replace(template)
}
