// Package service defines the contracts between the pipeline core and
// its external collaborators.
package service

import (
	"context"
	"time"

	"github.com/pennyflow/pennyflow/internal/model"
)

// ExpenseStore is the persistence collaborator. The pipeline never
// writes through it directly; callers hand it accepted expenses along
// with their provenance for the audit trail.
type ExpenseStore interface {
	SaveExpense(ctx context.Context, expense *model.ValidatedExpense) (int64, error)
	GetExpense(ctx context.Context, id int64) (*model.ValidatedExpense, error)
	ListExpenses(ctx context.Context, limit int) ([]model.ValidatedExpense, error)
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
