// Package pipeline implements the two-stage transformation from raw
// expense text to a validated expense record: extraction, then
// validation, sequenced by an orchestrator that returns every outcome
// as a value.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/pennyflow/pennyflow/internal/model"
)

// FailureKind tags the pipeline failure taxonomy.
type FailureKind string

// Failure kinds.
const (
	FailureExtraction       FailureKind = "extraction_failed"
	FailureValidation       FailureKind = "validation_failed"
	FailureModelUnavailable FailureKind = "model_unavailable"
	FailureSchemaViolation  FailureKind = "schema_violation"
)

// Failure is the terminal error value of a pipeline run. It carries the
// partial data that led to the failure so callers can store an audit
// trail, and implements error so it flows through normal error returns.
type Failure struct {
	Kind           FailureKind
	Reason         string
	RawModelOutput string // preserved for diagnostics when parsing failed
	Provenance     model.Provenance
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// Retryable reports whether the caller should suggest retrying rather
// than rephrasing. Only infrastructure failures qualify; extraction and
// validation failures mean the input itself needs work.
func (f *Failure) Retryable() bool {
	return f.Kind == FailureModelUnavailable
}

// AsFailure extracts a *Failure from err, or nil.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return nil
}
