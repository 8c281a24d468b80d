package ingest

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/storage"
	"github.com/spigell/cv-screener/internal/store"
	"github.com/spigell/cv-screener/internal/store/sqlite"
	"github.com/spigell/cv-screener/internal/worker"
)

const validCV = `{"name":"Jane Doe","email":"jane@example.com","phone":"+1 555 0100",
"education":[{"degree":"BSc","institution":"MIT","years":2015}],
"work_experience":[{"jobTitle":"Engineer","company":"Acme","duration":"3y","description":"Go"}],
"skills":["Go","SQL"],"certifications":[],"achievements":null}`

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(r io.ReaderAt, size int64) (string, error) {
	return s.text, s.err
}

// manualQueue keeps submitted tasks so tests decide when they run.
type manualQueue struct {
	mu    sync.Mutex
	tasks []worker.Task
	err   error
}

func (q *manualQueue) Submit(t worker.Task) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return uuid.Nil, q.err
	}
	q.tasks = append(q.tasks, t)
	return uuid.New(), nil
}

func (q *manualQueue) runAll(t *testing.T) {
	t.Helper()
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		if err := task.Run(context.Background()); err != nil {
			t.Fatalf("task %s: %v", task.Name, err)
		}
	}
}

type fixture struct {
	pipeline *Pipeline
	store    store.Store
	queue    *manualQueue
	calls    *int
}

func newFixture(t *testing.T, extractor TextExtractor, gen func(prompt string) (string, error)) fixture {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "cv.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	files, err := storage.New(afero.NewMemMapFs(), "/uploads")
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	calls := 0
	generator := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		calls++
		return gen(prompt)
	})

	q := &manualQueue{}
	p := New(Options{Store: db, Files: files, Extractor: extractor, Generator: generator, Queue: q}, zap.NewNop())
	return fixture{pipeline: p, store: db, queue: q, calls: &calls}
}

func respond(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

func TestFileID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "C123.pdf", want: "C123"},
		{name: "c7.PDF", want: "C7"},
		{name: "C0042.resume.pdf", want: "C0042"},
		{name: "C1.", want: "C1"},
		{name: "C123", wantErr: true},
		{name: "resume.pdf", wantErr: true},
		{name: "CX12.pdf", wantErr: true},
		{name: "xC12.pdf", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FileID(tt.name)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidIdentifier) {
					t.Fatalf("expected invalid identifier, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %q, got %q (%v)", tt.want, got, err)
			}
		})
	}
}

func TestSubmitAndProcessSuccess(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "Jane Doe resume"}, func(prompt string) (string, error) {
		if !strings.Contains(prompt, "Jane Doe resume") {
			t.Errorf("prompt does not carry cv text")
		}
		return "```json\n" + validCV + "\n```", nil
	})
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "c100.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if cand.FileID != "C100" || cand.Status != model.CandidateUploaded || cand.ID == 0 {
		t.Fatalf("unexpected candidate after submit: %+v", cand)
	}
	if *f.calls != 0 {
		t.Fatal("generation must not run before the queued task")
	}

	f.queue.runAll(t)

	got, err := f.store.GetCandidate(ctx, cand.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.CandidateParsed {
		t.Fatalf("expected PARSED, got %s (%s)", got.Status, got.ExtractedCVJSON)
	}
	if got.Name != "Jane Doe" || got.Email != "jane@example.com" || got.Phone != "+1 555 0100" {
		t.Fatalf("unexpected contact fields: %+v", got)
	}
	if got.ExtractedCVJSON != validCV {
		t.Fatalf("expected normalized json to be stored verbatim, got %q", got.ExtractedCVJSON)
	}
}

func TestSubmitInvalidNamePersistsNothing(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "x"}, respond(validCV))
	ctx := context.Background()

	_, err := f.pipeline.Submit(ctx, "resume.pdf", strings.NewReader("%PDF"))
	if !errors.Is(err, apperr.ErrInvalidIdentifier) {
		t.Fatalf("expected invalid identifier, got %v", err)
	}

	all, err := f.store.ListCandidates(ctx, store.CandidateFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 || len(f.queue.tasks) != 0 {
		t.Fatalf("nothing should be persisted or queued: %d candidates, %d tasks", len(all), len(f.queue.tasks))
	}
}

func TestReuploadResetsCandidate(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "resume"}, respond(validCV))
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, "C5.pdf", strings.NewReader("v1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.queue.runAll(t)

	parsed, _ := f.store.GetCandidate(ctx, first.ID)
	if parsed.Status != model.CandidateParsed {
		t.Fatalf("expected PARSED before re-upload, got %s", parsed.Status)
	}

	second, err := f.pipeline.Submit(ctx, "c5.pdf", strings.NewReader("v2"))
	if err != nil {
		t.Fatalf("re-submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("re-upload must reuse the candidate row: %d vs %d", second.ID, first.ID)
	}

	got, _ := f.store.GetCandidate(ctx, first.ID)
	if got.Status != model.CandidateUploaded {
		t.Fatalf("expected UPLOADED after re-upload, got %s", got.Status)
	}
	if got.Name != "" || got.Email != "" || got.Phone != "" || got.ExtractedCVJSON != "" {
		t.Fatalf("derived fields must be cleared: %+v", got)
	}
}

func TestProcessFailuresRecordDiagnostics(t *testing.T) {
	tests := []struct {
		name       string
		extractor  TextExtractor
		gen        func(string) (string, error)
		wantPrefix string
		wantExact  string
	}{
		{
			name:       "blank text",
			extractor:  stubExtractor{text: "   "},
			gen:        respond(validCV),
			wantPrefix: "Error: ",
		},
		{
			name:       "extractor error",
			extractor:  stubExtractor{err: apperr.New(apperr.ErrExtraction, "extract", "corrupt")},
			gen:        respond(validCV),
			wantPrefix: "Error: ",
		},
		{
			name:      "generation error",
			extractor: stubExtractor{text: "resume"},
			gen: func(string) (string, error) {
				return "", apperr.New(apperr.ErrGeneration, "generate", "service down")
			},
			wantPrefix: "Error: ",
		},
		{
			name:      "not json keeps raw text",
			extractor: stubExtractor{text: "resume"},
			gen:       respond("I could not find a resume here."),
			wantExact: "I could not find a resume here.",
		},
		{
			name:      "schema failure keeps normalized json",
			extractor: stubExtractor{text: "resume"},
			gen:       respond("```json\n{\"name\": 42}\n```"),
			wantExact: `{"name": 42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.extractor, tt.gen)
			ctx := context.Background()

			cand, err := f.pipeline.Submit(ctx, "C9.pdf", strings.NewReader("%PDF"))
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			f.queue.runAll(t)

			got, _ := f.store.GetCandidate(ctx, cand.ID)
			if got.Status != model.CandidateErrorParsing {
				t.Fatalf("expected ERROR_PARSING, got %s", got.Status)
			}
			if got.Name != "" || got.Email != "" {
				t.Fatalf("contact fields must stay empty on failure: %+v", got)
			}
			if tt.wantExact != "" && got.ExtractedCVJSON != tt.wantExact {
				t.Fatalf("expected diagnostic %q, got %q", tt.wantExact, got.ExtractedCVJSON)
			}
			if tt.wantPrefix != "" && !strings.HasPrefix(got.ExtractedCVJSON, tt.wantPrefix) {
				t.Fatalf("expected diagnostic prefix %q, got %q", tt.wantPrefix, got.ExtractedCVJSON)
			}
		})
	}
}

func TestProcessTruncatesDiagnostic(t *testing.T) {
	long := strings.Repeat("no json here ", 200)
	f := newFixture(t, stubExtractor{text: "resume"}, respond(long))
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "C11.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.queue.runAll(t)

	got, _ := f.store.GetCandidate(ctx, cand.ID)
	if n := len([]rune(got.ExtractedCVJSON)); n != MaxDiagnosticLength {
		t.Fatalf("expected diagnostic of %d runes, got %d", MaxDiagnosticLength, n)
	}
	if !strings.HasSuffix(got.ExtractedCVJSON, "...") {
		t.Fatal("expected truncated diagnostic to end with an ellipsis")
	}
}

func TestProcessSkipsParsedCandidate(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "resume"}, respond(validCV))
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "C12.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.queue.runAll(t)
	if *f.calls != 1 {
		t.Fatalf("expected one generation call, got %d", *f.calls)
	}

	// a duplicate trigger for the same candidate
	if err := f.pipeline.Process(ctx, cand.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if *f.calls != 1 {
		t.Fatalf("parsed candidate must not be processed again, got %d calls", *f.calls)
	}
}

func TestProcessRecoversFromPanic(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "resume"}, func(string) (string, error) {
		panic("generator exploded")
	})
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "C13.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.queue.runAll(t)

	got, _ := f.store.GetCandidate(ctx, cand.ID)
	if got.Status != model.CandidateErrorParsing {
		t.Fatalf("expected ERROR_PARSING after panic, got %s", got.Status)
	}
}

func TestProcessRecordsFailureWithCancelledContext(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "resume"}, respond("nope"))
	cand, err := f.pipeline.Submit(context.Background(), "C14.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := f.pipeline.generator
	f.pipeline.generator = ai.GeneratorFunc(func(c context.Context, p string) (string, error) {
		cancel()
		return gen.GenerateContent(c, p)
	})

	if err := f.pipeline.Process(ctx, cand.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := f.store.GetCandidate(context.Background(), cand.ID)
	if got.Status != model.CandidateErrorParsing {
		t.Fatalf("expected failure to be recorded despite cancellation, got %s", got.Status)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "resume"}, respond(validCV))
	f.queue.err = apperr.New(apperr.ErrQueueFull, "submit task", "full")
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "C15.pdf", strings.NewReader("%PDF"))
	if !errors.Is(err, apperr.ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}

	got, getErr := f.store.GetCandidate(ctx, cand.ID)
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if got.Status != model.CandidateErrorParsing || got.ExtractedCVJSON != queueFullDiagnostic {
		t.Fatalf("expected recorded queue failure, got %s %q", got.Status, got.ExtractedCVJSON)
	}
}

func TestConcurrentUploadsOfSameIdentifier(t *testing.T) {
	f := newFixture(t, stubExtractor{text: "resume"}, respond(validCV))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.Submit(ctx, "C77.pdf", strings.NewReader("%PDF"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent submit failed: %v", err)
		}
	}

	all, _ := f.store.ListCandidates(ctx, store.CandidateFilter{})
	if len(all) != 1 {
		t.Fatalf("expected a single candidate row, got %d", len(all))
	}
}

func TestReuploadDuringParseWinsOverStaleResult(t *testing.T) {
	oldCV := strings.NewReplacer("Jane Doe", "Old Name", "jane@example.com", "old@example.com").Replace(validCV)
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true
	f := newFixture(t, stubExtractor{text: "resume"}, func(string) (string, error) {
		if first {
			first = false
			close(entered)
			<-release
			return oldCV, nil
		}
		return validCV, nil
	})
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "C5.pdf", strings.NewReader("OLDRESUME"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stale := f.queue.tasks[0]
	f.queue.tasks = nil

	done := make(chan error, 1)
	go func() { done <- stale.Run(ctx) }()
	<-entered

	if _, err := f.pipeline.Submit(ctx, "C5.pdf", strings.NewReader("NEWRESUME")); err != nil {
		t.Fatalf("re-submit: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("stale task: %v", err)
	}

	got, _ := f.store.GetCandidate(ctx, cand.ID)
	if got.Status != model.CandidateUploaded || got.Name != "" || got.Email != "" {
		t.Fatalf("stale parse must not overwrite the re-upload: %s %q %q", got.Status, got.Name, got.Email)
	}

	f.queue.runAll(t)

	got, _ = f.store.GetCandidate(ctx, cand.ID)
	if got.Status != model.CandidateParsed || got.Name != "Jane Doe" || got.Email != "jane@example.com" {
		t.Fatalf("expected the re-uploaded resume to be parsed, got %s %q %q", got.Status, got.Name, got.Email)
	}
}

func TestStaleParseFailureIsDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true
	f := newFixture(t, stubExtractor{text: "resume"}, func(string) (string, error) {
		if first {
			first = false
			close(entered)
			<-release
			return "", errors.New("model unavailable")
		}
		return validCV, nil
	})
	ctx := context.Background()

	cand, err := f.pipeline.Submit(ctx, "C6.pdf", strings.NewReader("v1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stale := f.queue.tasks[0]
	f.queue.tasks = nil

	done := make(chan error, 1)
	go func() { done <- stale.Run(ctx) }()
	<-entered

	if _, err := f.pipeline.Submit(ctx, "C6.pdf", strings.NewReader("v2")); err != nil {
		t.Fatalf("re-submit: %v", err)
	}
	close(release)
	<-done

	got, _ := f.store.GetCandidate(ctx, cand.ID)
	if got.Status != model.CandidateUploaded || got.ExtractedCVJSON != "" {
		t.Fatalf("stale failure must not be recorded: %s %q", got.Status, got.ExtractedCVJSON)
	}
}

func TestDecodeCV(t *testing.T) {
	cv, err := DecodeCV(validCV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cv.Education[0]["years"] != "2015" {
		t.Fatalf("expected numeric year to be decoded as text, got %q", cv.Education[0]["years"])
	}
	if len(cv.Skills) != 2 || cv.Achievements != nil {
		t.Fatalf("unexpected lists: %+v", cv)
	}

	for _, bad := range []string{
		`{"email":"x@example.com"}`,
		`{"name":"X","skills":"Go"}`,
		`{"name":"X","education":["BSc"]}`,
		`{"name":`,
	} {
		if _, err := DecodeCV(bad); !errors.Is(err, apperr.ErrSchema) {
			t.Fatalf("%s: expected schema error, got %v", bad, err)
		}
	}
}
