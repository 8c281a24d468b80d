// Package pdftext pulls plain text out of PDF documents.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/spigell/cv-screener/internal/apperr"
)

type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract returns the trimmed text content of the PDF in r. Malformed
// documents are reported as apperr.ErrExtraction.
func (e *Extractor) Extract(r io.ReaderAt, size int64) (text string, err error) {
	const op = "extract pdf text"

	if r == nil || size <= 0 {
		return "", apperr.New(apperr.ErrExtraction, op, "document is empty")
	}

	// the parser panics on some corrupt inputs
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", apperr.New(apperr.ErrExtraction, op, "corrupt document: %v", rec)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrExtraction, op, err)
	}

	plain, err := doc.GetPlainText()
	if err != nil {
		return "", apperr.Wrap(apperr.ErrExtraction, op, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", apperr.Wrap(apperr.ErrExtraction, op, fmt.Errorf("read text: %w", err))
	}

	return strings.TrimSpace(buf.String()), nil
}
