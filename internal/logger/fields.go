package logger

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Field keys shared by every component.
const (
	FieldCandidateID   = "candidate_id"
	FieldCandidateFile = "candidate_file_id"
	FieldJobID         = "job_id"
	FieldApplicationID = "application_id"
	FieldTaskID        = "task_id"
	FieldStatus        = "status"

	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
)

// Candidate identifies a candidate. An unknown file id is left out.
func Candidate(id int64, fileID string) []zap.Field {
	fields := []zap.Field{zap.Int64(FieldCandidateID, id)}
	return appendNonEmpty(fields, FieldCandidateFile, fileID)
}

// Application identifies an application and the pair it belongs to.
func Application(id, jobID, candidateID int64) []zap.Field {
	return []zap.Field{
		zap.Int64(FieldApplicationID, id),
		zap.Int64(FieldJobID, jobID),
		zap.Int64(FieldCandidateID, candidateID),
	}
}

// Generator describes a text-generation backend; blank values are omitted.
func Generator(provider, model string) []zap.Field {
	fields := appendNonEmpty(nil, FieldProvider, provider)
	return appendNonEmpty(fields, FieldModel, model)
}

// ForGenerator returns l tagged with the generation backend.
func ForGenerator(l *zap.Logger, provider, model string) *zap.Logger {
	l = OrNop(l)
	fields := Generator(provider, model)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// Prompt returns the size and a bounded preview of an outgoing prompt.
func Prompt(prompt string, limit int) []zap.Field {
	return []zap.Field{
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", TruncateForLog(prompt, limit)),
	}
}

// Response returns the size and a bounded preview of a generated answer.
func Response(raw string, limit int) []zap.Field {
	return []zap.Field{
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", TruncateForLog(raw, limit)),
	}
}

func appendNonEmpty(fields []zap.Field, key, value string) []zap.Field {
	value = strings.TrimSpace(value)
	if value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}
