// Package api exposes the screening workflow over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/interview"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/matching"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

const defaultBodyLimit = 10 << 20

type Ingestor interface {
	Submit(ctx context.Context, filename string, r io.Reader) (*model.Candidate, error)
}

type JobService interface {
	LoadFromCSV(ctx context.Context, r io.Reader) ([]*model.JobDescription, error)
	Summarize(ctx context.Context, id int64) (*model.JobDescription, error)
}

type Matcher interface {
	Match(ctx context.Context, jobID, candidateID int64) (*model.Application, error)
	MatchAll(ctx context.Context, jobID int64) (matching.Outcome, error)
	Shortlist(ctx context.Context, jobID int64, threshold *float64) ([]*model.Application, error)
}

type Inviter interface {
	SendInvitations(ctx context.Context, jobID int64) (interview.Result, error)
}

// Store is the read side used to render entities.
type Store interface {
	store.CandidateStore
	store.JobStore
	store.ApplicationStore
}

type Deps struct {
	Store    Store
	Ingestor Ingestor
	Jobs     JobService
	Matcher  Matcher
	Inviter  Inviter

	// BodyLimit caps request bodies in bytes. Defaults to 10 MiB.
	BodyLimit int
}

type Server struct {
	app    *fiber.App
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps, log *zap.Logger) *Server {
	s := &Server{deps: deps, logger: logger.OrNop(log)}

	limit := deps.BodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "cv-screener",
		BodyLimit:             limit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(fiberrecover.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	candidates := api.Group("/candidates")
	candidates.Post("/upload", s.uploadCV)
	candidates.Get("/", s.listCandidates)
	candidates.Get("/:id", s.getCandidate)
	candidates.Get("/:id/parsed", s.getParsedCV)

	jobs := api.Group("/jobs")
	jobs.Post("/load-csv", s.loadJobs)
	jobs.Get("/", s.listJobs)
	jobs.Get("/:id", s.getJob)
	jobs.Post("/:id/summarize", s.summarizeJob)

	apps := api.Group("/applications")
	apps.Get("/", s.listApplications)
	apps.Post("/match", s.matchPair)
	apps.Get("/:id", s.getApplication)

	workflow := api.Group("/workflow")
	workflow.Post("/match-all", s.matchAll)
	workflow.Post("/shortlist", s.shortlist)
	workflow.Post("/send-interviews", s.sendInterviews)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("address", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("http request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("took", time.Since(start)),
	)
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		s.logger.Warn("request rejected", zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"message": err.Error()})
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return fiber.StatusNotFound
	case apperr.ErrStatePrecondition, apperr.ErrInvalidIdentifier, apperr.ErrParse:
		return fiber.StatusBadRequest
	case apperr.ErrQueueFull:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func pathID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id "+strconv.Quote(c.Params("id")))
	}
	return id, nil
}

func queryID(c *fiber.Ctx, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "query parameter "+name+" is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+" "+strconv.Quote(raw))
	}
	return id, nil
}
