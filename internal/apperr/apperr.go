// Package apperr defines the error kinds shared by the screening pipeline.
//
// Every failure that crosses a component boundary is classified by one of the
// sentinel kinds below so callers can branch with errors.Is without depending
// on the concrete collaborator that failed.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrStatePrecondition = errors.New("state precondition failed")
	ErrInvalidIdentifier = errors.New("invalid candidate identifier")
	ErrGeneration        = errors.New("text generation failed")
	ErrSchema            = errors.New("schema validation failed")
	ErrExtraction        = errors.New("text extraction failed")
	ErrStorage           = errors.New("file storage failed")
	ErrParse             = errors.New("parse failed")
	ErrTransport         = errors.New("mail transport failed")
	ErrQueueFull         = errors.New("work queue is full")
)

// Error ties a kind to the operation that failed and its underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind with a formatted cause.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) error {
	return &Error{Kind: ErrNotFound, Op: entity, Err: fmt.Errorf("%s %v does not exist", entity, id)}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound, ErrStatePrecondition, ErrInvalidIdentifier, ErrGeneration, ErrSchema,
		ErrExtraction, ErrStorage, ErrParse, ErrTransport, ErrQueueFull,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
