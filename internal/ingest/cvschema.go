package ingest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/model"
)

//go:embed cv.schema.json
var cvSchemaJSON string

var (
	cvSchemaOnce sync.Once
	cvSchema     *gojsonschema.Schema
	cvSchemaErr  error
)

func compiledCVSchema() (*gojsonschema.Schema, error) {
	cvSchemaOnce.Do(func() {
		cvSchema, cvSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(cvSchemaJSON))
	})
	return cvSchema, cvSchemaErr
}

// DecodeCV validates normalized CV JSON against the candidate-fields schema
// and decodes it. Shape problems are reported as apperr.ErrSchema.
func DecodeCV(normalized string) (*model.CVData, error) {
	const op = "decode cv"

	var doc map[string]any
	if err := json.Unmarshal([]byte(normalized), &doc); err != nil {
		return nil, apperr.Wrap(apperr.ErrSchema, op, err)
	}

	schema, err := compiledCVSchema()
	if err != nil {
		return nil, fmt.Errorf("compile cv schema: %w", err)
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSchema, op, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, apperr.New(apperr.ErrSchema, op, "%s", strings.Join(msgs, "; "))
	}

	var cv model.CVData
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &cv,
	})
	if err != nil {
		return nil, fmt.Errorf("create cv decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, apperr.Wrap(apperr.ErrSchema, op, err)
	}

	cv.Name = strings.TrimSpace(cv.Name)
	cv.Email = strings.TrimSpace(cv.Email)
	cv.Phone = strings.TrimSpace(cv.Phone)
	return &cv, nil
}
