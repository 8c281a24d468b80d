// Package jobcsv reads job descriptions from a two-column CSV export.
package jobcsv

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/apperr"
)

// Row is one usable job description from the file.
type Row struct {
	Title          string
	RawDescription string
}

type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse skips the header, rows with fewer than two columns and rows with a
// blank title or description. Extra columns are ignored.
func (p *Parser) Parse(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		rows []Row
		line int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrParse, "parse job csv", err)
		}
		line++

		if line == 1 {
			continue
		}
		if len(record) < 2 {
			p.logger.Warn("skipping csv row with too few columns", zap.Int("line", line), zap.Int("columns", len(record)))
			continue
		}

		row := Row{
			Title:          strings.TrimSpace(record[0]),
			RawDescription: strings.TrimSpace(record[1]),
		}
		if row.Title == "" || row.RawDescription == "" {
			p.logger.Warn("skipping csv row with blank title or description", zap.Int("line", line))
			continue
		}
		rows = append(rows, row)
	}

	p.logger.Debug("parsed job csv", zap.Int("rows", len(rows)), zap.Int("lines", line))
	return rows, nil
}
