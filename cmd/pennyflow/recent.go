package main

import (
	"fmt"
	"log/slog"

	"github.com/pennyflow/pennyflow/internal/config"
	"github.com/pennyflow/pennyflow/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func recentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently recorded expenses",
		RunE:  runRecent,
	}

	cmd.Flags().IntP("limit", "n", 10, "number of expenses to show")
	_ = viper.BindPFlag("recent.limit", cmd.Flags().Lookup("limit"))

	return cmd
}

func runRecent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := storage.NewSQLiteStore(config.DatabasePath(viper.GetString("database.path")))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	expenses, err := store.ListExpenses(ctx, viper.GetInt("recent.limit"))
	if err != nil {
		return fmt.Errorf("failed to list expenses: %w", err)
	}

	if len(expenses) == 0 {
		cmd.Println("No expenses recorded yet.")
		return nil
	}

	for _, expense := range expenses {
		cmd.Printf("%s  $%8.2f  %-14s  %s\n",
			expense.Date.Format("2006-01-02"),
			expense.Amount,
			expense.Category,
			expense.Description)
	}
	return nil
}
