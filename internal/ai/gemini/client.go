// Package gemini implements ai.Generator on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	Provider = "gemini"

	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	defaultMaxLogLen  = 200

	baseBackoff     = 2 * time.Second
	maxBackoff      = 30 * time.Second
	maxRetryHint    = 10 * time.Second
	retryAfterGroup = 1
)

var (
	sleep = utils.WaitFor

	retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)
)

type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	models     contentModel
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

type Options struct {
	APIKey       string
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, opts Options, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLen
	}

	return &Generator{
		models:     client.Models,
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     logger.ForGenerator(log, Provider, model),
	}, nil
}

// GenerateContent sends the prompt to Gemini and returns the joined text parts
// of the response. Transient API failures are retried with backoff.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", apperr.New(apperr.ErrGeneration, "gemini generate", "generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", apperr.New(apperr.ErrGeneration, "gemini generate", "prompt must not be empty")
	}

	g.logger.Debug("gemini generate content request", logger.Prompt(prompt, g.maxLogLen)...)

	attempts := g.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err == nil {
			output := responseText(resp)
			if output == "" {
				return "", apperr.New(apperr.ErrGeneration, "gemini generate", "api returned empty response")
			}
			g.logger.Debug("gemini generate content response", logger.Response(output, g.maxLogLen)...)
			return output, nil
		}

		lastErr = err
		wait, retry := retryDelay(err, attempt)
		if !retry || attempt == attempts-1 {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := sleep(ctx, wait); err != nil {
			return "", apperr.Wrap(apperr.ErrGeneration, "gemini generate", err)
		}
	}

	return "", apperr.Wrap(apperr.ErrGeneration, "gemini generate", lastErr)
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

// retryDelay decides whether err is transient and how long to wait before the
// next attempt. Quota errors are retried only when the server asks for a
// short pause.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}

	switch {
	case apiErr.Code >= http.StatusInternalServerError:
		return utils.Backoff(attempt, baseBackoff, maxBackoff), true
	case apiErr.Code == http.StatusTooManyRequests:
		hint, found := retryHint(apiErr)
		if !found || hint > maxRetryHint {
			return 0, false
		}
		return hint, true
	default:
		return 0, false
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func retryHint(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d, true
		}
	}

	match := retryAfterPattern.FindStringSubmatch(apiErr.Message)
	if len(match) <= retryAfterGroup {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[retryAfterGroup], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
