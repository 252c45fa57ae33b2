// Package schema is the single source of truth for the canonical
// category enumeration and the structural contract both pipeline stages
// validate against.
package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pennyflow/pennyflow/internal/model"
)

// MaxDescriptionLength bounds expense descriptions.
const MaxDescriptionLength = 100

// maxNormalizedDistance is the levenshtein distance, normalized by the
// longer string, above which a category guess is considered unrelated
// rather than a near-miss spelling.
const maxNormalizedDistance = 0.34

var canonical = []model.Category{
	model.CategoryFood,
	model.CategoryTransportation,
	model.CategoryEntertainment,
	model.CategoryShopping,
	model.CategoryHousing,
	model.CategoryHealthcare,
	model.CategoryEducation,
	model.CategoryOther,
}

// synonyms maps common off-enumeration wordings to canonical
// categories. Kept deliberately narrow: an unknown category is rejected
// downstream, never defaulted, so only unambiguous mappings belong here.
var synonyms = map[string]model.Category{
	"dining":      model.CategoryFood,
	"restaurant":  model.CategoryFood,
	"restaurants": model.CategoryFood,
	"groceries":   model.CategoryFood,
	"grocery":     model.CategoryFood,
	"transport":   model.CategoryTransportation,
	"transit":     model.CategoryTransportation,
	"travel":      model.CategoryTransportation,
	"commute":     model.CategoryTransportation,
	"rent":        model.CategoryHousing,
	"utilities":   model.CategoryHousing,
	"medical":     model.CategoryHealthcare,
	"health":      model.CategoryHealthcare,
	"pharmacy":    model.CategoryHealthcare,
	"movies":      model.CategoryEntertainment,
	"leisure":     model.CategoryEntertainment,
	"clothes":     model.CategoryShopping,
	"clothing":    model.CategoryShopping,
	"retail":      model.CategoryShopping,
	"school":      model.CategoryEducation,
	"tuition":     model.CategoryEducation,
	"misc":        model.CategoryOther,
}

// CanonicalCategories returns the fixed category enumeration.
func CanonicalCategories() []model.Category {
	out := make([]model.Category, len(canonical))
	copy(out, canonical)
	return out
}

// CategoryNames returns the enumeration as plain strings, for embedding
// in prompts.
func CategoryNames() []string {
	names := make([]string, len(canonical))
	for i, c := range canonical {
		names[i] = c.String()
	}
	return names
}

// IsCanonical reports whether name is exactly a canonical category.
func IsCanonical(name string) bool {
	for _, c := range canonical {
		if c.String() == name {
			return true
		}
	}
	return false
}

// Normalize maps arbitrary category text to the nearest canonical
// category: exact match first, then the synonym table, then a
// conservative fuzzy pass for near-miss spellings. Returns false when
// no reasonable mapping exists; callers must reject in that case rather
// than defaulting, since silently mapping to "other" would corrupt
// category aggregation.
func Normalize(text string) (model.Category, bool) {
	name := strings.ToLower(strings.TrimSpace(text))
	if name == "" {
		return "", false
	}

	for _, c := range canonical {
		if c.String() == name {
			return c, true
		}
	}

	if c, ok := synonyms[name]; ok {
		return c, true
	}

	// Fuzzy pass catches spellings like "transporation". Normalized by
	// the longer string so short words can't accidentally match.
	best := model.Category("")
	bestDist := 1.0
	for _, c := range canonical {
		dist := levenshtein.ComputeDistance(name, c.String())
		maxLen := len(c.String())
		if len(name) > maxLen {
			maxLen = len(name)
		}
		norm := float64(dist) / float64(maxLen)
		if norm < bestDist {
			bestDist = norm
			best = c
		}
	}
	if bestDist <= maxNormalizedDistance {
		return best, true
	}

	return "", false
}

// Violation describes a single schema violation.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// ValidateShape checks an extraction candidate against the structural
// contract: description present, date set, confidence scores in range.
// Category is deliberately not checked against the enumeration here; at
// this stage it is a provisional free-text guess. Amount positivity is
// likewise not checked; implausible amounts are a business rule the
// validation stage owns. Returns a non-empty violation list rather than
// an error so callers decide whether a violation is fatal.
func ValidateShape(candidate model.ExtractionCandidate) []Violation {
	var violations []Violation

	if strings.TrimSpace(candidate.Description) == "" {
		violations = append(violations, Violation{Field: "description", Reason: "must not be empty"})
	}
	if candidate.Date.IsZero() {
		violations = append(violations, Violation{Field: "date", Reason: "must be set"})
	}
	violations = append(violations, validateConfidence(candidate.Confidence)...)

	return violations
}

// ValidateExpense checks a validated expense against the full contract,
// including the category enumeration and the reference-date bound.
func ValidateExpense(expense model.ValidatedExpense, referenceDate time.Time) []Violation {
	var violations []Violation

	if expense.Amount <= 0 {
		violations = append(violations, Violation{Field: "amount", Reason: fmt.Sprintf("must be positive, got %.2f", expense.Amount)})
	}
	if !IsCanonical(expense.Category.String()) {
		violations = append(violations, Violation{Field: "category", Reason: fmt.Sprintf("%q is not a canonical category", expense.Category)})
	}
	desc := strings.TrimSpace(expense.Description)
	if desc == "" {
		violations = append(violations, Violation{Field: "description", Reason: "must not be empty"})
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		violations = append(violations, Violation{Field: "description", Reason: fmt.Sprintf("exceeds %d characters", MaxDescriptionLength)})
	}
	if expense.Date.IsZero() {
		violations = append(violations, Violation{Field: "date", Reason: "must be set"})
	} else if expense.Date.After(model.Day(referenceDate)) {
		violations = append(violations, Violation{Field: "date", Reason: fmt.Sprintf("%s is after reference date %s", expense.Date.Format("2006-01-02"), referenceDate.Format("2006-01-02"))})
	}

	return violations
}

func validateConfidence(c model.FieldConfidence) []Violation {
	var violations []Violation
	fields := map[string]float64{
		"confidence.amount":      c.Amount,
		"confidence.category":    c.Category,
		"confidence.description": c.Description,
		"confidence.date":        c.Date,
	}
	for field, score := range fields {
		if score < 0 || score > 1 {
			violations = append(violations, Violation{Field: field, Reason: fmt.Sprintf("must be in [0,1], got %.2f", score)})
		}
	}
	return violations
}
