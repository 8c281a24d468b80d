// Package storage keeps uploaded files on a local (or in-memory) filesystem.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/spigell/cv-screener/internal/apperr"
)

type Local struct {
	fs  afero.Fs
	dir string
}

// NewLocal stores files under dir on the OS filesystem.
func NewLocal(dir string) (*Local, error) {
	return New(afero.NewOsFs(), dir)
}

// New stores files under dir on fs, creating the directory when missing.
func New(fs afero.Fs, dir string) (*Local, error) {
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "" || dir == "." {
		dir = "uploads"
	}
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorage, "create upload dir", err)
	}
	return &Local{fs: fs, dir: dir}, nil
}

func (l *Local) Dir() string { return l.dir }

// Store writes r to dir/name, replacing any existing file, and returns the
// stored path. Names with traversal sequences and empty content are refused.
func (l *Local) Store(name string, r io.Reader) (string, error) {
	const op = "store file"

	if strings.Contains(name, "..") {
		return "", apperr.New(apperr.ErrStorage, op, "file name %q contains a relative path sequence", name)
	}
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == string(filepath.Separator) || strings.TrimSpace(base) == "" {
		return "", apperr.New(apperr.ErrStorage, op, "file name %q is invalid", name)
	}

	path := filepath.Join(l.dir, base)
	tmp, err := afero.TempFile(l.fs, l.dir, "."+base+".*")
	if err != nil {
		return "", apperr.Wrap(apperr.ErrStorage, op, err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	switch {
	case copyErr != nil:
		_ = l.fs.Remove(tmpName)
		return "", apperr.Wrap(apperr.ErrStorage, op, copyErr)
	case closeErr != nil:
		_ = l.fs.Remove(tmpName)
		return "", apperr.Wrap(apperr.ErrStorage, op, closeErr)
	case n == 0:
		_ = l.fs.Remove(tmpName)
		return "", apperr.New(apperr.ErrStorage, op, "file %q is empty", base)
	}

	if err := l.fs.Rename(tmpName, path); err != nil {
		_ = l.fs.Remove(tmpName)
		return "", apperr.Wrap(apperr.ErrStorage, op, fmt.Errorf("move into place: %w", err))
	}
	return path, nil
}

// Open returns the stored file at path together with its size.
func (l *Local) Open(path string) (afero.File, int64, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, apperr.New(apperr.ErrExtraction, "open stored file", "file %q does not exist", path)
		}
		return nil, 0, apperr.Wrap(apperr.ErrStorage, "open stored file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, apperr.Wrap(apperr.ErrStorage, "stat stored file", err)
	}
	return f, info.Size(), nil
}
