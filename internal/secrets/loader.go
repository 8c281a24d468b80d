// Package secrets resolves credentials given inline or as a mounted file.
package secrets

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// Source names one credential and where it may come from. A non-empty File
// wins over Value.
type Source struct {
	Name  string
	Value string
	File  string

	// Optional lets an unconfigured secret resolve to "". A configured but
	// empty file is an error either way.
	Optional bool

	// FS is read for File; nil means the host filesystem.
	FS afero.Fs
}

func (s Source) label() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return "secret"
}

// Load returns the trimmed secret described by src.
func Load(src Source) (string, error) {
	if path := strings.TrimSpace(src.File); path != "" {
		return fromFile(src, path)
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" && !src.Optional {
		return "", fmt.Errorf("%s is not configured", src.label())
	}
	return secret, nil
}

func fromFile(src Source, path string) (string, error) {
	fs := src.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("reading %s from file %q: %w", src.label(), path, err)
	}
	if secret := strings.TrimSpace(string(data)); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("%s file %q is empty", src.label(), path)
}
