// Package storage implements the persistence collaborator: an audit
// store for accepted expenses and their provenance.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the service.ExpenseStore interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

var _ service.ExpenseStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the expense database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath must not be empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Migrate creates the schema if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount REAL NOT NULL CHECK (amount > 0),
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		date TEXT NOT NULL,
		input_method TEXT NOT NULL,
		provenance TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(category);
	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date);`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveExpense persists a validated expense along with its provenance
// JSON for the audit trail. Returns the row ID.
func (s *SQLiteStore) SaveExpense(ctx context.Context, expense *model.ValidatedExpense) (int64, error) {
	if expense == nil {
		return 0, fmt.Errorf("expense must not be nil")
	}

	provenance, err := json.Marshal(expense.Provenance)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal provenance: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (amount, category, description, date, input_method, provenance)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		expense.Amount,
		expense.Category.String(),
		expense.Description,
		expense.Date.Format("2006-01-02"),
		string(expense.Provenance.RawInput.Method),
		string(provenance),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read expense id: %w", err)
	}
	return id, nil
}

// GetExpense fetches a single expense by row ID. Returns
// common.ErrNotFound when no such row exists.
func (s *SQLiteStore) GetExpense(ctx context.Context, id int64) (*model.ValidatedExpense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT amount, category, description, date, provenance
		 FROM expenses WHERE id = ?`, id)

	var (
		expense    model.ValidatedExpense
		category   string
		date       string
		provenance string
	)
	if err := row.Scan(&expense.Amount, &category, &expense.Description, &date, &provenance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("expense %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load expense: %w", err)
	}

	expense.Category = model.Category(category)
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("stored date %q is invalid: %w", date, err)
	}
	expense.Date = parsed
	if err := json.Unmarshal([]byte(provenance), &expense.Provenance); err != nil {
		return nil, fmt.Errorf("stored provenance is invalid: %w", err)
	}

	return &expense, nil
}

// ListExpenses returns the most recently recorded expenses. The full
// CRUD/query surface lives outside this module; this exists so the CLI
// can show what was stored.
func (s *SQLiteStore) ListExpenses(ctx context.Context, limit int) ([]model.ValidatedExpense, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT amount, category, description, date, provenance
		 FROM expenses ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.ValidatedExpense
	for rows.Next() {
		var (
			expense    model.ValidatedExpense
			category   string
			date       string
			provenance string
		)
		if err := rows.Scan(&expense.Amount, &category, &expense.Description, &date, &provenance); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}

		expense.Category = model.Category(category)
		expense.Date, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("stored date %q is invalid: %w", date, err)
		}
		if err := json.Unmarshal([]byte(provenance), &expense.Provenance); err != nil {
			return nil, fmt.Errorf("stored provenance is invalid: %w", err)
		}

		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	return expenses, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
