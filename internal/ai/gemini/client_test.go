package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-screener/internal/apperr"
)

type fakeModels struct {
	mu        sync.Mutex
	calls     []string
	responses []fakeResponse
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	f.calls = append(f.calls, model+":"+contents[0].Parts[0].Text)
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	original := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { sleep = original })
	return &waits
}

func newTestGenerator(models contentModel, retries int) *Generator {
	return &Generator{
		models:     models,
		model:      "gemini-pro",
		maxRetries: retries,
		maxLogLen:  50,
		logger:     zap.NewNop(),
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	waits := noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	output, err := newTestGenerator(models, 2).GenerateContent(context.Background(), " message ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 2 || models.calls[0] != "gemini-pro:message" {
		t.Fatalf("unexpected calls: %v", models.calls)
	}

	if len(*waits) != 1 || (*waits)[0] != baseBackoff {
		t.Fatalf("unexpected backoff: %v", *waits)
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	_, err := newTestGenerator(models, 2).GenerateContent(context.Background(), "msg")
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("expected generation error after retries exhausted, got %v", err)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	_, err := newTestGenerator(models, 3).GenerateContent(context.Background(), "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorRetriesShortQuotaDelay(t *testing.T) {
	waits := noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Details: []map[string]any{{"retryDelay": "3s"}},
	})
	models.enqueue(textResponse("{}"), nil)

	if _, err := newTestGenerator(models, 3).GenerateContent(context.Background(), "msg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*waits) != 1 || (*waits)[0] != 3*time.Second {
		t.Fatalf("expected server provided delay, got %v", *waits)
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	if _, err := newTestGenerator(models, 3).GenerateContent(context.Background(), "msg"); err == nil {
		t.Fatal("expected error")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("   "), nil)

	_, err := newTestGenerator(models, 1).GenerateContent(context.Background(), "msg")
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestGeneratorRejectsEmptyPrompt(t *testing.T) {
	models := &fakeModels{}
	_, err := newTestGenerator(models, 1).GenerateContent(context.Background(), "  ")
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if len(models.calls) != 0 {
		t.Fatal("no request expected for empty prompt")
	}
}
