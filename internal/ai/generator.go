// Package ai holds the provider-neutral side of text generation: the client
// contract, request throttling and the parsing of generated JSON.
package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/cv-screener/internal/apperr"
)

// Generator sends a prompt to a text-generation service and returns the
// produced text. Implementations classify failures as apperr.ErrGeneration.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Limited throttles calls to the wrapped generator.
type Limited struct {
	next    Generator
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLimited allows requestsPerMinute calls per minute with a burst of one.
// A non-positive rate returns next unchanged.
func NewLimited(next Generator, requestsPerMinute int, logger *zap.Logger) Generator {
	if requestsPerMinute <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		logger:  logger,
	}
}

func (l *Limited) GenerateContent(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.ErrGeneration, "wait for generation slot", err)
	}
	if waited := time.Since(start); waited > time.Second {
		l.logger.Debug("generation request throttled", zap.Duration("waited", waited))
	}
	return l.next.GenerateContent(ctx, prompt)
}
