package storage

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/spigell/cv-screener/internal/apperr"
)

func newMem(t *testing.T) (*Local, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	l, err := New(fs, "/uploads")
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	return l, fs
}

func TestStoreAndOpen(t *testing.T) {
	l, fs := newMem(t)

	path, err := l.Store("C100.pdf", strings.NewReader("first"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/uploads/C100.pdf" {
		t.Fatalf("unexpected path %q", path)
	}

	// replaces the existing file
	if _, err := l.Store("C100.pdf", strings.NewReader("second")); err != nil {
		t.Fatalf("unexpected error on overwrite: %v", err)
	}

	f, size, err := l.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "second" || size != 6 {
		t.Fatalf("unexpected content %q (%d bytes)", data, size)
	}

	entries, _ := afero.ReadDir(fs, "/uploads")
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestStoreRejects(t *testing.T) {
	l, _ := newMem(t)

	tests := []struct {
		name     string
		fileName string
		content  string
	}{
		{name: "traversal", fileName: "../etc/C1.pdf", content: "x"},
		{name: "dots inside", fileName: "C1..pdf", content: "x"},
		{name: "empty content", fileName: "C1.pdf", content: ""},
		{name: "empty name", fileName: "", content: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Store(tt.fileName, strings.NewReader(tt.content))
			if !errors.Is(err, apperr.ErrStorage) {
				t.Fatalf("expected storage error, got %v", err)
			}
		})
	}
}

func TestStoreUsesBaseName(t *testing.T) {
	l, _ := newMem(t)
	path, err := l.Store("nested/dir/C5.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/uploads/C5.pdf" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestOpenMissingIsExtractionError(t *testing.T) {
	l, _ := newMem(t)
	_, _, err := l.Open("/uploads/missing.pdf")
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}
