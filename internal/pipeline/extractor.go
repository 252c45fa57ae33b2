package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/prompt"
	"github.com/pennyflow/pennyflow/internal/schema"
)

// defaultConfidence is used for fields the model returned no confidence
// score for. Conservative on purpose.
const defaultConfidence = 0.5

// Extractor converts raw input into a first-pass structured candidate.
type Extractor struct {
	client  llm.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewExtractor creates the extraction stage.
func NewExtractor(client llm.Client, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{client: client, timeout: timeout, logger: logger}
}

// intentExpense is the intent tag the extraction prompt asks the model
// to return for input that actually describes a spending event.
const intentExpense = "add_expense"

// extractionWire is the JSON shape the extraction prompt asks for.
// Amount is a json.Number so a model quoting the number still parses;
// anything non-numeric is rejected rather than zeroed.
type extractionWire struct {
	Intent      string             `json:"intent"`
	Amount      json.Number        `json:"amount"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Date        string             `json:"date"`
	Confidence  map[string]float64 `json:"confidence"`
}

// Extract runs the extraction stage. Returns the candidate, a *Failure
// with kind extraction_failed when the model output cannot be
// interpreted, or the untouched *llm.ModelError when the backend call
// itself failed (the orchestrator owns retry policy).
func (e *Extractor) Extract(ctx context.Context, raw model.RawInput) (*model.ExtractionCandidate, error) {
	p, err := prompt.Build(prompt.StageExtraction, raw, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := e.client.Invoke(ctx, p.System, p.User)
	if err != nil {
		return nil, err
	}

	candidate, err := e.parseCandidate(output, raw)
	if err != nil {
		e.logger.Warn("extraction output not interpretable",
			"method", raw.Method,
			"error", err)
		return nil, &Failure{
			Kind:           FailureExtraction,
			Reason:         err.Error(),
			RawModelOutput: output,
			Provenance:     model.Provenance{RawInput: raw},
		}
	}

	e.logger.Debug("extraction candidate produced",
		"amount", candidate.Amount,
		"category", candidate.Category,
		"date", candidate.Date.Format("2006-01-02"))

	return candidate, nil
}

// parseCandidate interprets model output as the candidate shape. No
// heuristic recovery: garbled output fails with the raw text preserved
// by the caller.
func (e *Extractor) parseCandidate(output string, raw model.RawInput) (*model.ExtractionCandidate, error) {
	content := llm.CleanMarkdownWrapper(output)

	var wire extractionWire
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("response is not a candidate object: %w", err)
	}

	// Input that describes no spending event is rejected before the
	// amount is even looked at, skipping the validation model call. A
	// missing intent tag is tolerated and treated as an expense.
	if wire.Intent != "" && wire.Intent != intentExpense {
		return nil, fmt.Errorf("input does not describe an expense (intent %q)", wire.Intent)
	}

	amount, err := wire.Amount.Float64()
	if err != nil {
		return nil, fmt.Errorf("amount %q is not numeric", wire.Amount.String())
	}

	// Missing date defaults to the reference date; a present but
	// unparseable date is garbled output.
	date := raw.ReferenceDate
	if wire.Date != "" {
		parsed, parseErr := time.ParseInLocation("2006-01-02", wire.Date, raw.ReferenceDate.Location())
		if parseErr != nil {
			return nil, fmt.Errorf("date %q is not an ISO calendar date", wire.Date)
		}
		date = parsed
	}

	candidate := &model.ExtractionCandidate{
		Amount:      amount,
		Category:    wire.Category,
		Description: wire.Description,
		Date:        date,
		Confidence:  confidenceFromMap(wire.Confidence),
	}

	// The candidate must conform structurally before it is allowed to
	// leave this stage; a confidence score outside [0,1] is garbled
	// output, not something validation can repair.
	if violations := schema.ValidateShape(*candidate); len(violations) > 0 {
		reasons := make([]string, len(violations))
		for i, v := range violations {
			reasons[i] = v.String()
		}
		return nil, fmt.Errorf("candidate is malformed: %s", strings.Join(reasons, "; "))
	}

	return candidate, nil
}

// confidenceFromMap converts the model's loose confidence map into the
// fixed field set, defaulting absent scores.
func confidenceFromMap(scores map[string]float64) model.FieldConfidence {
	get := func(field string) float64 {
		if score, ok := scores[field]; ok {
			return score
		}
		return defaultConfidence
	}
	return model.FieldConfidence{
		Amount:      get("amount"),
		Category:    get("category"),
		Description: get("description"),
		Date:        get("date"),
	}
}
