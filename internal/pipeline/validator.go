package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/prompt"
	"github.com/pennyflow/pennyflow/internal/schema"
)

// Validator audits and normalizes an extraction candidate into a
// validated expense, or rejects it.
type Validator struct {
	client  llm.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewValidator creates the validation stage.
func NewValidator(client llm.Client, timeout time.Duration, logger *slog.Logger) *Validator {
	if timeout == 0 {
		// Validation prompts are shorter than extraction prompts, so
		// the default deadline is tighter.
		timeout = 15 * time.Second
	}
	return &Validator{client: client, timeout: timeout, logger: logger}
}

// validationWire is the JSON shape the validation prompt asks for.
type validationWire struct {
	Verdict string   `json:"verdict"`
	Expense *struct {
		Amount      json.Number `json:"amount"`
		Category    string      `json:"category"`
		Description string      `json:"description"`
		Date        string      `json:"date"`
	} `json:"expense"`
	Issues []string `json:"issues"`
}

// Validate runs the validation stage. The model's verdict is advisory:
// every business rule is re-enforced locally, so a model that claims
// "valid" for a bad record still gets rejected here.
func (v *Validator) Validate(ctx context.Context, raw model.RawInput, candidate *model.ExtractionCandidate) (*model.ValidatedExpense, error) {
	p, err := prompt.Build(prompt.StageValidation, raw, candidate)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	output, err := v.client.Invoke(ctx, p.System, p.User)
	if err != nil {
		return nil, err
	}

	content := llm.CleanMarkdownWrapper(output)

	var wire validationWire
	if unmarshalErr := json.Unmarshal([]byte(content), &wire); unmarshalErr != nil {
		return nil, v.reject(raw, candidate, model.VerdictInvalid, output,
			fmt.Sprintf("verdict is not interpretable: %v", unmarshalErr), nil)
	}

	verdict := model.ValidationVerdict(wire.Verdict)
	switch verdict {
	case model.VerdictValid, model.VerdictValidCorrected:
		// Continue to local enforcement.
	case model.VerdictInvalid:
		return nil, v.reject(raw, candidate, verdict, output, joinIssues(wire.Issues), wire.Issues)
	default:
		return nil, v.reject(raw, candidate, model.VerdictInvalid, output,
			fmt.Sprintf("unknown verdict %q", wire.Verdict), wire.Issues)
	}

	if wire.Expense == nil {
		return nil, v.reject(raw, candidate, verdict, output, "verdict carried no expense record", wire.Issues)
	}

	amount, err := wire.Expense.Amount.Float64()
	if err != nil {
		return nil, v.reject(raw, candidate, verdict, output,
			fmt.Sprintf("amount %q is not numeric", wire.Expense.Amount.String()), wire.Issues)
	}
	if amount <= 0 {
		return nil, v.reject(raw, candidate, verdict, output,
			fmt.Sprintf("amount must be positive, got %.2f", amount), wire.Issues)
	}

	// Unmappable categories are rejected, never defaulted: silently
	// mapping to "other" would corrupt budget-by-category aggregation.
	category, ok := schema.Normalize(wire.Expense.Category)
	if !ok {
		return nil, v.reject(raw, candidate, verdict, output,
			fmt.Sprintf("category %q cannot be mapped to a canonical category", wire.Expense.Category), wire.Issues)
	}

	description := cleanDescription(wire.Expense.Description)
	if description == "" {
		return nil, v.reject(raw, candidate, verdict, output, "description is empty after cleaning", wire.Issues)
	}

	date := candidate.Date
	if wire.Expense.Date != "" {
		parsed, parseErr := time.ParseInLocation("2006-01-02", wire.Expense.Date, raw.ReferenceDate.Location())
		if parseErr != nil {
			return nil, v.reject(raw, candidate, verdict, output,
				fmt.Sprintf("date %q is not an ISO calendar date", wire.Expense.Date), wire.Issues)
		}
		date = parsed
	}
	// Expenses are recorded after the fact, not scheduled.
	if date.After(raw.ReferenceDate) {
		return nil, v.reject(raw, candidate, verdict, output,
			fmt.Sprintf("date %s is after the reference date %s",
				date.Format("2006-01-02"), raw.ReferenceDate.Format("2006-01-02")), wire.Issues)
	}

	expense := &model.ValidatedExpense{
		Amount:      amount,
		Category:    category,
		Description: description,
		Date:        date,
		Provenance: model.Provenance{
			RawInput:  raw,
			Candidate: candidate,
			Verdict:   verdict,
			Issues:    wire.Issues,
		},
	}

	v.logger.Debug("candidate validated",
		"verdict", verdict,
		"category", category,
		"amount", amount)

	return expense, nil
}

// reject builds a validation failure carrying full provenance.
func (v *Validator) reject(raw model.RawInput, candidate *model.ExtractionCandidate, verdict model.ValidationVerdict, output, reason string, issues []string) *Failure {
	v.logger.Info("candidate rejected",
		"verdict", verdict,
		"reason", reason)
	return &Failure{
		Kind:           FailureValidation,
		Reason:         reason,
		RawModelOutput: output,
		Provenance: model.Provenance{
			RawInput:  raw,
			Candidate: candidate,
			Verdict:   verdict,
			Issues:    issues,
		},
	}
}

// cleanDescription trims whitespace and truncates to the schema bound.
func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > schema.MaxDescriptionLength {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:schema.MaxDescriptionLength]))
	}
	return s
}

func joinIssues(issues []string) string {
	if len(issues) == 0 {
		return "rejected by validation model"
	}
	return strings.Join(issues, "; ")
}
