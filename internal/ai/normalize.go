package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
)

// NormalizeJSON strips code fences around a generated answer and checks that
// what remains looks like a JSON object. It does not parse the object.
func NormalizeJSON(raw string) (string, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return "", apperr.New(apperr.ErrGeneration, "normalize response", "response is empty")
	}
	if !strings.HasPrefix(cleaned, "{") || !strings.HasSuffix(cleaned, "}") {
		return "", apperr.New(apperr.ErrGeneration, "normalize response",
			"response is not a JSON object after cleaning: %q", cleaned)
	}
	return cleaned, nil
}

type matchVerdict struct {
	Score         json.RawMessage `json:"match_score"`
	Justification json.RawMessage `json:"justification"`
}

// ParseMatch reads a {match_score, justification} verdict. The score must be a
// whole number between 0 and 100; numeric strings are accepted.
func ParseMatch(raw string) (model.MatchResult, error) {
	const op = "parse match result"

	cleaned, err := NormalizeJSON(raw)
	if err != nil {
		return model.MatchResult{}, err
	}

	var verdict matchVerdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return model.MatchResult{}, apperr.Wrap(apperr.ErrGeneration, op, err)
	}

	score, err := wholeScore(verdict.Score)
	if err != nil {
		return model.MatchResult{}, apperr.Wrap(apperr.ErrGeneration, op, err)
	}

	return model.MatchResult{
		Score:         score,
		Justification: rawText(verdict.Justification),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func wholeScore(raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, errors.New("match_score is missing")
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}

	score, err := strconv.ParseFloat(text, 64)
	switch {
	case err != nil || math.IsNaN(score):
		return 0, fmt.Errorf("match_score %s is not a number", raw)
	case score != math.Trunc(score):
		return 0, fmt.Errorf("match_score %s is not an integer", raw)
	case score < 0 || score > 100:
		return 0, fmt.Errorf("match_score %s is outside 0-100", raw)
	}
	return int(score), nil
}

// rawText returns a JSON string unquoted and anything else as compact JSON.
func rawText(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return text
}
