package model

// CVData is the candidate-fields schema extracted from a resume.
type CVData struct {
	Name           string              `json:"name"`
	Email          string              `json:"email"`
	Phone          string              `json:"phone"`
	Education      []map[string]string `json:"education"`
	WorkExperience []map[string]string `json:"work_experience"`
	Skills         []string            `json:"skills"`
	Certifications []string            `json:"certifications"`
	Achievements   []string            `json:"achievements"`
}

// MatchResult is the scoring verdict for one job/candidate pair.
type MatchResult struct {
	Score         int    `json:"match_score"`
	Justification string `json:"justification"`
}
