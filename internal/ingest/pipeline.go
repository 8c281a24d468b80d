// Package ingest turns uploaded resumes into parsed candidates.
//
// Submit stores the file and records the candidate synchronously, then hands
// the slow part (PDF text extraction and structured extraction through the
// generation service) to a worker pool. Process runs that slow part and
// always leaves the candidate in PARSED or ERROR_PARSING.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/prompts"
	"github.com/spigell/cv-screener/internal/store"
	"github.com/spigell/cv-screener/internal/utils"
	"github.com/spigell/cv-screener/internal/worker"
)

const (
	// MaxDiagnosticLength bounds what is stored in place of CV JSON on failure.
	MaxDiagnosticLength = 1000

	queueFullDiagnostic = "parse queue full"
	defaultMaxLogLen    = 200
	recoveryTimeout     = 10 * time.Second
)

var fileIDPattern = regexp.MustCompile(`(?i)^(C\d+)\..*`)

type FileStore interface {
	Store(name string, r io.Reader) (string, error)
	Open(path string) (afero.File, int64, error)
}

type TextExtractor interface {
	Extract(r io.ReaderAt, size int64) (string, error)
}

type Queue interface {
	Submit(t worker.Task) (uuid.UUID, error)
}

type Pipeline struct {
	store     store.CandidateStore
	files     FileStore
	extractor TextExtractor
	generator ai.Generator
	queue     Queue
	logger    *zap.Logger
	maxLogLen int

	locks   keyedMutex
	uploads uploadCounter
}

type Options struct {
	Store        store.CandidateStore
	Files        FileStore
	Extractor    TextExtractor
	Generator    ai.Generator
	Queue        Queue
	MaxLogLength int
}

func New(opts Options, log *zap.Logger) *Pipeline {
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLen
	}
	return &Pipeline{
		store:     opts.Store,
		files:     opts.Files,
		extractor: opts.Extractor,
		generator: opts.Generator,
		queue:     opts.Queue,
		logger:    logger.OrNop(log),
		maxLogLen: opts.MaxLogLength,
	}
}

// FileID extracts the uppercased candidate identifier from a file name such
// as "c123.pdf".
func FileID(filename string) (string, error) {
	m := fileIDPattern.FindStringSubmatch(strings.TrimSpace(filename))
	if m == nil {
		return "", apperr.New(apperr.ErrInvalidIdentifier, "candidate file id",
			"file name %q does not match C<digits>.<ext>", filename)
	}
	return strings.ToUpper(m[1]), nil
}

// Submit records an uploaded resume and queues it for parsing. The returned
// candidate is in UPLOADED; extraction happens later on the worker pool.
// When the queue is full the candidate is marked ERROR_PARSING and the error
// wraps apperr.ErrQueueFull.
func (p *Pipeline) Submit(ctx context.Context, filename string, r io.Reader) (*model.Candidate, error) {
	fileID, err := FileID(filename)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(fileID)
	defer unlock()

	path, err := p.files.Store(filename, r)
	if err != nil {
		return nil, fmt.Errorf("store upload %s: %w", filename, err)
	}

	cand, err := p.upsert(ctx, fileID, path)
	if err != nil {
		return nil, err
	}

	log := p.logger.With(logger.Candidate(cand.ID, cand.FileID)...)
	upload := p.uploads.next(fileID)

	taskID, err := p.queue.Submit(worker.Task{
		Name: "parse-cv " + cand.FileID,
		Run: func(ctx context.Context) error {
			return p.process(ctx, cand.ID, upload)
		},
	})
	if err != nil {
		log.Error("could not queue cv for parsing", zap.Error(err))
		p.recordFailure(ctx, log, cand.ID, queueFullDiagnostic)
		cand.Status = model.CandidateErrorParsing
		cand.ExtractedCVJSON = queueFullDiagnostic
		if errors.Is(err, apperr.ErrQueueFull) {
			return cand, err
		}
		return cand, apperr.Wrap(apperr.ErrQueueFull, "queue cv parsing", err)
	}

	log.Info("cv queued for parsing", zap.String(logger.FieldTaskID, taskID.String()))
	return cand, nil
}

func (p *Pipeline) upsert(ctx context.Context, fileID, path string) (*model.Candidate, error) {
	cand, err := p.store.FindCandidateByFileID(ctx, fileID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		cand = &model.Candidate{FileID: fileID, Status: model.CandidateUploaded, OriginalFilePath: path}
		if err := p.store.CreateCandidate(ctx, cand); err != nil {
			return nil, fmt.Errorf("create candidate %s: %w", fileID, err)
		}
		p.logger.Info("candidate created", logger.Candidate(cand.ID, fileID)...)
		return cand, nil
	case err != nil:
		return nil, fmt.Errorf("find candidate %s: %w", fileID, err)
	}

	previous := cand.Status
	cand.ResetForUpload(path)
	if err := p.store.SaveCandidate(ctx, cand); err != nil {
		return nil, fmt.Errorf("reset candidate %s: %w", fileID, err)
	}
	p.logger.Info("candidate reset for re-upload",
		append(logger.Candidate(cand.ID, fileID), zap.String("previous_status", string(previous)))...)
	return cand, nil
}

// Process parses the stored resume of candidateID. Failures are recorded on
// the candidate rather than returned; the error result only reports problems
// that prevented recording anything at all.
func (p *Pipeline) Process(ctx context.Context, candidateID int64) error {
	return p.process(ctx, candidateID, latestUpload)
}

// process parses on behalf of one upload. Once a newer upload of the same
// file id has been submitted, nothing this run produces is written.
func (p *Pipeline) process(ctx context.Context, candidateID int64, upload uint64) (err error) {
	log := p.logger.With(zap.Int64(logger.FieldCandidateID, candidateID))

	cand, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("load candidate: %w", err)
	}
	log = log.With(zap.String(logger.FieldCandidateFile, cand.FileID))
	if upload == latestUpload {
		upload = p.uploads.current(cand.FileID)
	}

	var started bool
	err = p.ifCurrent(log, cand.FileID, upload, func() error {
		// re-read under the lock so a reset made by a newer upload is seen
		fresh, err := p.store.GetCandidate(ctx, candidateID)
		if err != nil {
			return fmt.Errorf("load candidate: %w", err)
		}
		cand = fresh
		if cand.Status == model.CandidateParsed {
			log.Info("candidate already parsed, skipping")
			return nil
		}
		if err := cand.SetStatus(model.CandidateParsing); err != nil {
			return err
		}
		if err := p.store.SaveCandidate(ctx, cand); err != nil {
			return fmt.Errorf("mark candidate parsing: %w", err)
		}
		started = true
		return nil
	})
	if err != nil || !started {
		return err
	}

	fail := func(diagnostic string) {
		_ = p.ifCurrent(log, cand.FileID, upload, func() error {
			p.recordFailure(ctx, log, candidateID, diagnostic)
			return nil
		})
	}

	var attempt parseAttempt
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("cv parsing panicked", zap.String("panic", fmt.Sprint(rec)))
			fail(attempt.diagnostic(fmt.Errorf("panic: %v", rec)))
			err = nil
		}
	}()

	cv, err := p.parse(ctx, log, cand, &attempt)
	if err != nil {
		log.Error("cv parsing failed", zap.Error(err))
		fail(attempt.diagnostic(err))
		return nil
	}

	cand.Name, cand.Email, cand.Phone = cv.Name, cv.Email, cv.Phone
	cand.ExtractedCVJSON = attempt.normalized
	if err := cand.SetStatus(model.CandidateParsed); err != nil {
		return err
	}

	_ = p.ifCurrent(log, cand.FileID, upload, func() error {
		if err := p.store.SaveCandidate(ctx, cand); err != nil {
			log.Error("saving parsed candidate failed", zap.Error(err))
			p.recordFailure(ctx, log, candidateID, attempt.diagnostic(err))
			return nil
		}
		log.Info("candidate parsed", zap.String("name", cand.Name))
		return nil
	})
	return nil
}

// ifCurrent runs fn while holding the file id lock, provided upload is still
// the latest one submitted for fileID.
func (p *Pipeline) ifCurrent(log *zap.Logger, fileID string, upload uint64, fn func() error) error {
	unlock := p.locks.Lock(fileID)
	defer unlock()

	if latest := p.uploads.current(fileID); latest != upload {
		log.Info("candidate re-uploaded meanwhile, dropping stale parse",
			zap.Uint64("upload", upload), zap.Uint64("latest_upload", latest))
		return nil
	}
	return fn()
}

// parseAttempt keeps the intermediate outputs of one parse so a failure can
// store the most useful one.
type parseAttempt struct {
	raw        string
	normalized string
}

func (a parseAttempt) diagnostic(err error) string {
	switch {
	case a.normalized != "":
		return a.normalized
	case a.raw != "":
		return a.raw
	default:
		return "Error: " + err.Error()
	}
}

func (p *Pipeline) parse(ctx context.Context, log *zap.Logger, cand *model.Candidate, attempt *parseAttempt) (*model.CVData, error) {
	text, err := p.extractText(cand.OriginalFilePath)
	if err != nil {
		return nil, err
	}
	log.Debug("cv text extracted", zap.Int("length", len(text)))

	raw, err := p.generator.GenerateContent(ctx, prompts.CVExtraction(text))
	if err != nil {
		return nil, fmt.Errorf("generate cv extraction: %w", err)
	}
	attempt.raw = raw
	log.Debug("cv extraction response", logger.Response(raw, p.maxLogLen)...)

	normalized, err := ai.NormalizeJSON(raw)
	if err != nil {
		return nil, err
	}
	attempt.normalized = normalized

	return DecodeCV(normalized)
}

func (p *Pipeline) extractText(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", apperr.New(apperr.ErrExtraction, "extract cv text", "candidate has no stored file")
	}

	f, size, err := p.files.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	text, err := p.extractor.Extract(f, size)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.ErrExtraction, "extract cv text", "no text found in %s", path)
	}
	return text, nil
}

// recordFailure marks the candidate ERROR_PARSING in its own short-lived
// context so it still lands when ctx is already cancelled. Its own failure is
// only logged.
func (p *Pipeline) recordFailure(ctx context.Context, log *zap.Logger, candidateID int64, diagnostic string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoveryTimeout)
	defer cancel()

	cand, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		log.Error("could not load candidate to record parsing error", zap.Error(err))
		return
	}

	cand.Status = model.CandidateErrorParsing
	cand.Name, cand.Email, cand.Phone = "", "", ""
	cand.ExtractedCVJSON = utils.Abbreviate(diagnostic, MaxDiagnosticLength)

	if err := p.store.SaveCandidate(ctx, cand); err != nil {
		log.Error("could not record parsing error", zap.Error(err))
		return
	}
	log.Warn("candidate marked as failed", zap.String(logger.FieldStatus, string(cand.Status)))
}

const latestUpload uint64 = 0

// uploadCounter numbers the uploads of each file id, starting at 1.
type uploadCounter struct {
	mu   sync.Mutex
	seen map[string]uint64
}

func (u *uploadCounter) next(fileID string) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.seen == nil {
		u.seen = make(map[string]uint64)
	}
	u.seen[fileID]++
	return u.seen[fileID]
}

func (u *uploadCounter) current(fileID string) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.seen[fileID]
}

// keyedMutex serializes work per candidate identifier.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
