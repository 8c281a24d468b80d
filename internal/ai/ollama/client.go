// Package ollama implements ai.Generator against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/logger"
)

const (
	Provider = "ollama"

	defaultURL       = "http://localhost:11434/api/generate"
	defaultModel     = "llama3"
	defaultTimeout   = 5 * time.Minute
	defaultMaxLogLen = 200

	contentType = "application/json"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model         string `json:"model"`
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration"`
}

type Options struct {
	URL          string
	Model        string
	Timeout      time.Duration
	MaxLogLength int
}

type Client struct {
	http      *http.Client
	url       string
	model     string
	maxLogLen int
	logger    *zap.Logger
}

func New(opts Options, log *zap.Logger) *Client {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = defaultURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLen
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		url:       url,
		model:     model,
		maxLogLen: maxLogLen,
		logger:    logger.ForGenerator(log, Provider, model),
	}
}

// GenerateContent posts a non-streaming generate request and returns the
// trimmed response text.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, "ollama encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, "ollama build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("sending prompt to ollama", logger.Prompt(prompt, c.maxLogLen)...)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, "ollama request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("ollama returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", logger.TruncateForLog(string(body), c.maxLogLen)),
		)
		return "", apperr.New(apperr.ErrGeneration, "ollama request", "bad status: %s", resp.Status)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, "ollama decode response", err)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", apperr.New(apperr.ErrGeneration, "ollama request", "empty response text")
	}

	c.logger.Debug("received response from ollama",
		append(logger.Response(text, c.maxLogLen),
			zap.Bool("done", out.Done),
			zap.Duration("total_duration", time.Duration(out.TotalDuration)),
		)...,
	)

	return text, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) String() string { return fmt.Sprintf("%s(%s)", Provider, c.model) }
