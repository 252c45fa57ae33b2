package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCandidate() *model.ExtractionCandidate {
	return &model.ExtractionCandidate{
		Amount:      45,
		Category:    "food",
		Description: "pizza",
		Date:        time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		Confidence:  model.FieldConfidence{Amount: 0.9, Category: 0.9, Description: 0.9, Date: 0.9},
	}
}

func TestValidateRejections(t *testing.T) {
	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)

	tests := []struct {
		name       string
		response   string
		wantReason string
	}{
		{
			name:       "unknown verdict",
			response:   `{"verdict": "maybe", "expense": {"amount": 45, "category": "food", "description": "pizza", "date": "2026-02-14"}, "issues": []}`,
			wantReason: "unknown verdict",
		},
		{
			name:       "valid verdict without expense record",
			response:   `{"verdict": "valid", "expense": null, "issues": []}`,
			wantReason: "no expense record",
		},
		{
			name:       "zero amount",
			response:   `{"verdict": "valid", "expense": {"amount": 0, "category": "food", "description": "pizza", "date": "2026-02-14"}, "issues": []}`,
			wantReason: "must be positive",
		},
		{
			name:       "unparseable date",
			response:   `{"verdict": "valid", "expense": {"amount": 45, "category": "food", "description": "pizza", "date": "soon"}, "issues": []}`,
			wantReason: "not an ISO calendar date",
		},
		{
			name:       "unmappable category",
			response:   `{"verdict": "valid", "expense": {"amount": 45, "category": "gambling", "description": "pizza", "date": "2026-02-14"}, "issues": []}`,
			wantReason: "cannot be mapped",
		},
		{
			name:       "blank description",
			response:   `{"verdict": "valid", "expense": {"amount": 45, "category": "food", "description": "   ", "date": "2026-02-14"}, "issues": []}`,
			wantReason: "description is empty",
		},
		{
			name:       "future date",
			response:   `{"verdict": "valid", "expense": {"amount": 45, "category": "food", "description": "pizza", "date": "2026-03-01"}, "issues": []}`,
			wantReason: "after the reference date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{responses: []string{tt.response}}
			v := NewValidator(client, 0, testLogger())

			expense, err := v.Validate(context.Background(), raw, testCandidate())
			require.Error(t, err)
			assert.Nil(t, expense)

			f := AsFailure(err)
			require.NotNil(t, f)
			assert.Equal(t, FailureValidation, f.Kind)
			assert.Contains(t, f.Reason, tt.wantReason)
			require.NotNil(t, f.Provenance.Candidate)
		})
	}
}

func TestValidateMissingDateFallsBackToCandidate(t *testing.T) {
	raw := model.NewRawInput("I spent $45 on pizza last night", model.MethodText, referenceDate)
	response := `{"verdict": "valid", "expense": {"amount": 45, "category": "food", "description": "pizza"}, "issues": []}`

	client := &mockClient{responses: []string{response}}
	v := NewValidator(client, 0, testLogger())

	candidate := testCandidate()
	expense, err := v.Validate(context.Background(), raw, candidate)
	require.NoError(t, err)

	assert.True(t, expense.Date.Equal(candidate.Date))
}

func TestValidateDescriptionTruncated(t *testing.T) {
	raw := model.NewRawInput("groceries", model.MethodText, referenceDate)
	long := strings.Repeat("groceries and sundries ", 10)
	response := `{"verdict": "valid_with_corrections", "expense": {"amount": 82.19, "category": "food", "description": "` + long + `", "date": "2026-02-15"}, "issues": ["description shortened"]}`

	client := &mockClient{responses: []string{response}}
	v := NewValidator(client, 0, testLogger())

	expense, err := v.Validate(context.Background(), raw, testCandidate())
	require.NoError(t, err)

	assert.LessOrEqual(t, utf8.RuneCountInString(expense.Description), schema.MaxDescriptionLength)
	assert.NotEmpty(t, expense.Description)
}

func TestValidateNilCandidate(t *testing.T) {
	raw := model.NewRawInput("I spent $45 on pizza", model.MethodText, referenceDate)

	client := &mockClient{}
	v := NewValidator(client, 0, testLogger())

	_, err := v.Validate(context.Background(), raw, nil)
	require.Error(t, err)
	assert.Equal(t, 0, client.callCount())
}

func TestValidateNormalizesVerbatimCategory(t *testing.T) {
	raw := model.NewRawInput("monthly rent 1800", model.MethodText, referenceDate)
	response := `{"verdict": "valid", "expense": {"amount": 1800, "category": "rent", "description": "monthly rent", "date": "2026-02-15"}, "issues": []}`

	client := &mockClient{responses: []string{response}}
	v := NewValidator(client, 0, testLogger())

	expense, err := v.Validate(context.Background(), raw, testCandidate())
	require.NoError(t, err)
	assert.Equal(t, model.CategoryHousing, expense.Category)
}
