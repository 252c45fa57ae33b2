// Package prompt constructs the stage-specific instructions sent to the
// language model. Builders are deterministic and perform no I/O.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/schema"
)

// ErrEmptyInput is returned when the raw input is empty or whitespace
// only. Empty input can never produce a valid expense, so it fails here
// before the expensive model call.
var ErrEmptyInput = errors.New("input is empty")

// Stage selects which pipeline stage a prompt is built for.
type Stage string

// Stage constants.
const (
	StageExtraction Stage = "extraction"
	StageValidation Stage = "validation"
)

// Prompt is the instruction pair handed to the model invoker.
type Prompt struct {
	System string
	User   string
}

const extractionSystem = `You are an expense tracking assistant. Extract expense information from user input.

First decide intent: if the input does not describe money being spent (a question, a greeting, a balance check), respond with only {"intent": "other"} and nothing else. Otherwise set "intent" to "add_expense" and extract the fields below.

Extract:
1. amount: the monetary value as a positive decimal number (convert words like "forty five" to 45)
2. category: your best single-word guess at what kind of expense this is
3. description: a brief summary of what the expense was for, 100 characters or less
4. date: the calendar date of the expense in YYYY-MM-DD form (resolve "yesterday", "last night" and similar against the reference date; use the reference date if no date is mentioned)

Input may be typed text, a speech transcript, or OCR output from a receipt. Handle colloquialisms and informal phrasing.

Examples:
- "I spent 50 dollars on groceries yesterday" -> {"amount": 50, "category": "food", "description": "groceries", "date": "<yesterday>"}
- "Uber to work was fifteen bucks" -> {"amount": 15, "category": "transportation", "description": "Uber to work", "date": "<reference date>"}
- "Movie tickets twenty five" -> {"amount": 25, "category": "entertainment", "description": "movie tickets", "date": "<reference date>"}

Respond with ONLY a valid JSON object matching this shape, no markdown or commentary:
{"intent": "add_expense", "amount": number, "category": string, "description": string, "date": "YYYY-MM-DD", "confidence": {"amount": 0-1, "category": 0-1, "description": 0-1, "date": 0-1}}`

const extractionUserTemplate = `Extract expense information from this input.

Input method: %s
Reference date (today): %s
User input: %q

If any field is missing or unclear, make your best guess from context and lower its confidence score accordingly.`

const validationSystem = `You are a data validation assistant for an expense tracking system. You audit a previously extracted expense record.

Your job:
1. Normalize the category to exactly one of the standard categories: %s
2. Check the amount is a positive number that matches the original input
3. Clean the description: trim noise, keep it clear, 100 characters or less
4. Check the date is a valid YYYY-MM-DD calendar date and not after the reference date

Verdicts:
- "valid": the record is already correct (category may still be normalized)
- "valid_with_corrections": you corrected one or more field values
- "invalid": the record cannot be repaired; list the problems in "issues"

If the category cannot reasonably be mapped to a standard category, return "invalid" rather than guessing.

Respond with ONLY a valid JSON object, no markdown or commentary:
{"verdict": "valid"|"valid_with_corrections"|"invalid", "expense": {"amount": number, "category": string, "description": string, "date": "YYYY-MM-DD"}, "issues": [string]}`

const validationUserTemplate = `Audit this extracted expense record.

Extracted record:
%s

Original input: %q
Reference date (today): %s

Return the cleaned record with your verdict, or "invalid" with the list of problems.`

// Build constructs the prompt for the given stage. The validation stage
// requires the extraction candidate so the model can audit it.
func Build(stage Stage, raw model.RawInput, candidate *model.ExtractionCandidate) (Prompt, error) {
	if strings.TrimSpace(raw.Text) == "" {
		return Prompt{}, ErrEmptyInput
	}

	switch stage {
	case StageExtraction:
		return Prompt{
			System: extractionSystem,
			User: fmt.Sprintf(extractionUserTemplate,
				raw.Method,
				raw.ReferenceDate.Format("2006-01-02"),
				raw.Text),
		}, nil

	case StageValidation:
		if candidate == nil {
			return Prompt{}, fmt.Errorf("validation prompt requires an extraction candidate")
		}
		return Prompt{
			System: fmt.Sprintf(validationSystem, strings.Join(schema.CategoryNames(), ", ")),
			User: fmt.Sprintf(validationUserTemplate,
				candidateDetails(candidate),
				raw.Text,
				raw.ReferenceDate.Format("2006-01-02")),
		}, nil

	default:
		return Prompt{}, fmt.Errorf("unknown prompt stage: %s", stage)
	}
}

// candidateDetails renders the candidate as indented JSON for embedding
// in the validation prompt.
func candidateDetails(candidate *model.ExtractionCandidate) string {
	wire := struct {
		Amount      float64 `json:"amount"`
		Category    string  `json:"category"`
		Description string  `json:"description"`
		Date        string  `json:"date"`
	}{
		Amount:      candidate.Amount,
		Category:    candidate.Category,
		Description: candidate.Description,
		Date:        candidate.Date.Format("2006-01-02"),
	}

	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		// Wire struct contains only plain fields; marshal cannot fail.
		return fmt.Sprintf("amount: %.2f, category: %s", candidate.Amount, candidate.Category)
	}
	return string(data)
}
