package model

import "time"

// InputMethod tags where the raw text came from.
type InputMethod string

// Input method constants.
const (
	MethodText    InputMethod = "text"
	MethodVoice   InputMethod = "voice"
	MethodReceipt InputMethod = "receipt"
)

// RawInput is the ingestion payload handed to the pipeline, regardless
// of origin (typed, transcribed, OCR'd). Created per request and never
// mutated.
type RawInput struct {
	ReferenceDate time.Time
	Text          string
	Method        InputMethod
}

// NewRawInput builds a RawInput, defaulting the reference date to today
// when none is given. The reference date is truncated to a calendar day.
func NewRawInput(text string, method InputMethod, referenceDate time.Time) RawInput {
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}
	return RawInput{
		Text:          text,
		Method:        method,
		ReferenceDate: Day(referenceDate),
	}
}

// Day truncates a time to its calendar date in the same location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FieldConfidence maps the closed set of extracted fields to confidence
// scores in [0,1]. A fixed struct rather than an open map so the schema
// registry can validate its shape.
type FieldConfidence struct {
	Amount      float64 `json:"amount"`
	Category    float64 `json:"category"`
	Description float64 `json:"description"`
	Date        float64 `json:"date"`
}

// ExtractionCandidate is the first-pass structured guess produced by
// the extraction stage. Category is still free text here; enforcement
// against the canonical enumeration happens in validation.
type ExtractionCandidate struct {
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Confidence  FieldConfidence `json:"confidence"`
}

// ValidationVerdict is the validation stage's judgment of a candidate.
type ValidationVerdict string

// Validation verdict constants.
const (
	VerdictValid          ValidationVerdict = "valid"
	VerdictValidCorrected ValidationVerdict = "valid_with_corrections"
	VerdictInvalid        ValidationVerdict = "invalid"
)

// Provenance retains the raw input and intermediate stage outputs for
// audit and debugging. Attached to every pipeline result.
type Provenance struct {
	RawInput  RawInput             `json:"raw_input"`
	Candidate *ExtractionCandidate `json:"candidate,omitempty"`
	Verdict   ValidationVerdict    `json:"verdict,omitempty"`
	Issues    []string             `json:"issues,omitempty"`
}

// ValidatedExpense is the final schema-conformant record the pipeline
// guarantees on success: positive amount, canonical category, cleaned
// non-empty description of at most 100 characters, and a date no later
// than the reference date.
type ValidatedExpense struct {
	Date        time.Time  `json:"date"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	Amount      float64    `json:"amount"`
	Provenance  Provenance `json:"provenance"`
}
