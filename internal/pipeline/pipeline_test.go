package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a test implementation of the llm.Client interface. Each
// call consumes the next scripted error or response.
type mockClient struct {
	responses []string
	errors    []error
	calls     int
	mu        sync.Mutex
}

func (m *mockClient) Invoke(_ context.Context, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	callIdx := m.calls
	m.calls++

	if callIdx < len(m.errors) && m.errors[callIdx] != nil {
		return "", m.errors[callIdx]
	}
	if callIdx < len(m.responses) {
		return m.responses[callIdx], nil
	}
	return "", fmt.Errorf("no more mock responses (call %d, responses: %d)", callIdx, len(m.responses))
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline(client llm.Client) *Pipeline {
	return New(client, Config{RetryDelay: time.Millisecond}, testLogger())
}

var referenceDate = time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

const extractionPizza = `{"amount": 45, "category": "food", "description": "pizza", "date": "2026-02-14", "confidence": {"amount": 0.95, "category": 0.9, "description": 0.85, "date": 0.8}}`

const validationPizza = `{"verdict": "valid", "expense": {"amount": 45, "category": "food", "description": "pizza", "date": "2026-02-14"}, "issues": []}`

func TestProcessHappyPath(t *testing.T) {
	client := &mockClient{responses: []string{extractionPizza, validationPizza}}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, expense)

	assert.InDelta(t, 45.0, expense.Amount, 0.001)
	assert.Equal(t, model.CategoryFood, expense.Category)
	assert.Equal(t, "pizza", expense.Description)
	assert.True(t, expense.Date.Equal(time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)))

	// Provenance carries the full trail.
	assert.Equal(t, raw.Text, expense.Provenance.RawInput.Text)
	assert.Equal(t, model.MethodText, expense.Provenance.RawInput.Method)
	require.NotNil(t, expense.Provenance.Candidate)
	assert.InDelta(t, 0.95, expense.Provenance.Candidate.Confidence.Amount, 0.001)
	assert.Equal(t, model.VerdictValid, expense.Provenance.Verdict)

	assert.Equal(t, 2, client.callCount())
}

func TestProcessEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty string", text: ""},
		{name: "whitespace only", text: "   \t\n  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{}
			p := testPipeline(client)

			raw := model.NewRawInput(tt.text, model.MethodText, referenceDate)

			expense, err := p.Process(context.Background(), raw)
			require.ErrorIs(t, err, prompt.ErrEmptyInput)
			assert.Nil(t, expense)

			// No model call is made for input that can never succeed.
			assert.Equal(t, 0, client.callCount())
		})
	}
}

func TestProcessModelTimeout(t *testing.T) {
	timeout := &llm.ModelError{Kind: llm.KindTimeout, Err: context.DeadlineExceeded}

	client := &mockClient{errors: []error{timeout, timeout}}
	p := testPipeline(client)

	raw := model.NewRawInput("coffee 4.50", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.Error(t, err)
	assert.Nil(t, expense)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureModelUnavailable, f.Kind)
	assert.True(t, f.Retryable())
	assert.Equal(t, raw.Text, f.Provenance.RawInput.Text)

	// One retry per stage, then give up.
	assert.Equal(t, 2, client.callCount())
}

func TestProcessUnreachableFailsFast(t *testing.T) {
	unreachable := &llm.ModelError{Kind: llm.KindUnreachable, Err: fmt.Errorf("connection refused")}

	client := &mockClient{errors: []error{unreachable}}
	p := testPipeline(client)

	raw := model.NewRawInput("coffee 4.50", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureModelUnavailable, f.Kind)

	// Unreachable backends are not retried.
	assert.Equal(t, 1, client.callCount())
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	rateLimited := &llm.ModelError{Kind: llm.KindRateLimited, Err: fmt.Errorf("429")}

	client := &mockClient{
		errors:    []error{rateLimited, nil},
		responses: []string{"", extractionPizza, validationPizza},
	}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryFood, expense.Category)

	// Failed extraction attempt, retried extraction, validation.
	assert.Equal(t, 3, client.callCount())
}

func TestProcessNegativeAmountRejectedByValidation(t *testing.T) {
	// Extraction passes the implausible amount through; validation is
	// where the business rule is enforced.
	extraction := `{"amount": -20, "category": "food", "description": "refund", "date": "2026-02-14", "confidence": {"amount": 0.9, "category": 0.9, "description": 0.9, "date": 0.9}}`
	validation := `{"verdict": "valid", "expense": {"amount": -20, "category": "food", "description": "refund", "date": "2026-02-14"}, "issues": []}`

	client := &mockClient{responses: []string{extraction, validation}}
	p := testPipeline(client)

	raw := model.NewRawInput("got 20 dollars back for the burnt pizza", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.Error(t, err)
	assert.Nil(t, expense)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureValidation, f.Kind)
	assert.False(t, f.Retryable())
	assert.Contains(t, f.Reason, "must be positive")
	require.NotNil(t, f.Provenance.Candidate)
	assert.InDelta(t, -20.0, f.Provenance.Candidate.Amount, 0.001)

	assert.Equal(t, 2, client.callCount())
}

func TestProcessFutureDateRejected(t *testing.T) {
	extraction := `{"amount": 30, "category": "transportation", "description": "flight", "date": "2026-02-20", "confidence": {"amount": 0.9, "category": 0.9, "description": 0.9, "date": 0.9}}`
	validation := `{"verdict": "valid", "expense": {"amount": 30, "category": "transportation", "description": "flight", "date": "2026-02-20"}, "issues": []}`

	client := &mockClient{responses: []string{extraction, validation}}
	p := testPipeline(client)

	raw := model.NewRawInput("flight next Friday, 30 bucks", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureValidation, f.Kind)
	assert.Contains(t, f.Reason, "after the reference date")
}

func TestProcessGarbledExtractionOutput(t *testing.T) {
	output := "I believe the user spent some money on something."

	client := &mockClient{responses: []string{output}}
	p := testPipeline(client)

	raw := model.NewRawInput("spent money on stuff", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureExtraction, f.Kind)
	assert.False(t, f.Retryable())
	assert.Equal(t, output, f.RawModelOutput)

	// Garbled output is not a transport error; no retry, no validation.
	assert.Equal(t, 1, client.callCount())
}

func TestProcessGarbledValidationOutput(t *testing.T) {
	client := &mockClient{responses: []string{extractionPizza, "looks good to me!"}}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureValidation, f.Kind)
	assert.Equal(t, "looks good to me!", f.RawModelOutput)
	assert.Equal(t, 2, client.callCount())
}

func TestProcessUnmappableCategoryRejected(t *testing.T) {
	extraction := `{"amount": 200, "category": "cryptocurrency", "description": "bitcoin", "date": "2026-02-14", "confidence": {"amount": 0.9, "category": 0.5, "description": 0.9, "date": 0.9}}`
	validation := `{"verdict": "valid", "expense": {"amount": 200, "category": "cryptocurrency", "description": "bitcoin", "date": "2026-02-14"}, "issues": []}`

	client := &mockClient{responses: []string{extraction, validation}}
	p := testPipeline(client)

	raw := model.NewRawInput("bought 200 of bitcoin", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureValidation, f.Kind)
	assert.Contains(t, f.Reason, "cannot be mapped")
}

func TestProcessInvalidVerdictCarriesIssues(t *testing.T) {
	validation := `{"verdict": "invalid", "expense": null, "issues": ["no monetary amount in the input"]}`

	client := &mockClient{responses: []string{extractionPizza, validation}}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureValidation, f.Kind)
	assert.Contains(t, f.Reason, "no monetary amount")
	assert.Equal(t, model.VerdictInvalid, f.Provenance.Verdict)
	assert.Equal(t, []string{"no monetary amount in the input"}, f.Provenance.Issues)
}

func TestProcessCategoryCorrection(t *testing.T) {
	extraction := `{"amount": 18.50, "category": "dining", "description": "sushi lunch", "date": "2026-02-15", "confidence": {"amount": 0.9, "category": 0.7, "description": 0.9, "date": 0.9}}`
	validation := `{"verdict": "valid_with_corrections", "expense": {"amount": 18.50, "category": "dining", "description": "sushi lunch", "date": "2026-02-15"}, "issues": ["category normalized"]}`

	client := &mockClient{responses: []string{extraction, validation}}
	p := testPipeline(client)

	raw := model.NewRawInput("sushi lunch, 18.50", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.NoError(t, err)

	// "dining" maps onto the canonical enumeration.
	assert.Equal(t, model.CategoryFood, expense.Category)
	assert.Equal(t, model.VerdictValidCorrected, expense.Provenance.Verdict)
	assert.Equal(t, []string{"category normalized"}, expense.Provenance.Issues)
}

func TestProcessMarkdownWrappedResponses(t *testing.T) {
	client := &mockClient{responses: []string{
		"```json\n" + extractionPizza + "\n```",
		"```json\n" + validationPizza + "\n```",
	}}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryFood, expense.Category)
}

func TestProcessVoiceTranscript(t *testing.T) {
	extraction := `{"amount": 30, "category": "transportation", "description": "Uber to the airport", "date": "2026-02-15", "confidence": {"amount": 0.8, "category": 0.9, "description": 0.9, "date": 0.7}}`
	validation := `{"verdict": "valid", "expense": {"amount": 30, "category": "transportation", "description": "Uber to the airport", "date": "2026-02-15"}, "issues": []}`

	client := &mockClient{responses: []string{extraction, validation}}
	p := testPipeline(client)

	raw := model.NewRawInput("uber to the airport was thirty bucks", model.MethodVoice, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryTransportation, expense.Category)
	assert.Equal(t, model.MethodVoice, expense.Provenance.RawInput.Method)
}

func TestProcessOutOfRangeConfidenceRejected(t *testing.T) {
	extraction := `{"amount": 45, "category": "food", "description": "pizza", "date": "2026-02-14", "confidence": {"amount": 7.5, "category": -2, "description": 0.9, "date": 0.9}}`

	client := &mockClient{responses: []string{extraction}}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	expense, err := p.Process(context.Background(), raw)
	require.Error(t, err)
	assert.Nil(t, expense)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureExtraction, f.Kind)
	assert.Contains(t, f.Reason, "confidence.amount")
	assert.Contains(t, f.Reason, "confidence.category")

	// Malformed candidates never reach the validation stage.
	assert.Equal(t, 1, client.callCount())
}

func TestProcessNonExpenseInput(t *testing.T) {
	client := &mockClient{responses: []string{`{"intent": "other"}`}}
	p := testPipeline(client)

	raw := model.NewRawInput("what's my current balance?", model.MethodText, referenceDate)

	_, err := p.Process(context.Background(), raw)
	require.Error(t, err)

	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureExtraction, f.Kind)
	assert.Contains(t, f.Reason, "does not describe an expense")

	// Intent is decided in the first pass; no validation call happens.
	assert.Equal(t, 1, client.callCount())
}

func TestProcessReingestionStable(t *testing.T) {
	client := &mockClient{responses: []string{extractionPizza, validationPizza}}
	p := testPipeline(client)

	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	first, err := p.Process(context.Background(), raw)
	require.NoError(t, err)

	// Feed the accepted expense back through as unambiguous text. The
	// second pass must land on the same category and amount.
	replay := fmt.Sprintf("%.2f dollars for %s in %s on %s",
		first.Amount, first.Description, first.Category, first.Date.Format("2006-01-02"))

	reExtraction := fmt.Sprintf(
		`{"amount": %.2f, "category": "%s", "description": "%s", "date": "%s", "confidence": {"amount": 1, "category": 1, "description": 1, "date": 1}}`,
		first.Amount, first.Category, first.Description, first.Date.Format("2006-01-02"))
	reValidation := fmt.Sprintf(
		`{"verdict": "valid", "expense": {"amount": %.2f, "category": "%s", "description": "%s", "date": "%s"}, "issues": []}`,
		first.Amount, first.Category, first.Description, first.Date.Format("2006-01-02"))

	replayClient := &mockClient{responses: []string{reExtraction, reValidation}}
	p2 := testPipeline(replayClient)

	second, err := p2.Process(context.Background(), model.NewRawInput(replay, model.MethodText, referenceDate))
	require.NoError(t, err)

	assert.Equal(t, first.Category, second.Category)
	assert.InDelta(t, first.Amount, second.Amount, 0.001)
	assert.True(t, first.Date.Equal(second.Date))
}
