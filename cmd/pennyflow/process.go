package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/config"
	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/pipeline"
	"github.com/pennyflow/pennyflow/internal/prompt"
	"github.com/pennyflow/pennyflow/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [text]",
		Short: "Run expense text through the extraction/validation pipeline",
		Long: `Run one piece of expense text through both pipeline stages and record
the result.

Examples:
  pennyflow process "I spent 45 dollars on pizza last night"
  pennyflow process --method voice "uber to the airport was thirty bucks"
  pennyflow process --method receipt --date 2026-08-01 "$12.40 WHOLE FOODS MARKET"`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().StringP("method", "m", "text", "input method (text, voice, receipt)")
	cmd.Flags().StringP("date", "d", "", "reference date (YYYY-MM-DD, default today)")
	cmd.Flags().Bool("no-save", false, "print the result without recording it")

	_ = viper.BindPFlag("process.method", cmd.Flags().Lookup("method"))
	_ = viper.BindPFlag("process.date", cmd.Flags().Lookup("date"))
	_ = viper.BindPFlag("process.no_save", cmd.Flags().Lookup("no-save"))

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	method, err := parseMethod(viper.GetString("process.method"))
	if err != nil {
		return err
	}

	referenceDate := time.Time{}
	if dateFlag := viper.GetString("process.date"); dateFlag != "" {
		referenceDate, err = time.ParseInLocation("2006-01-02", dateFlag, time.Local)
		if err != nil {
			return fmt.Errorf("invalid reference date (use YYYY-MM-DD): %w", err)
		}
	}

	client, err := llm.NewClient(llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	p := pipeline.New(client, pipeline.Config{
		ExtractionTimeout: viper.GetDuration("pipeline.extraction_timeout"),
		ValidationTimeout: viper.GetDuration("pipeline.validation_timeout"),
		RateLimit:         viper.GetInt("llm.rate_limit"),
	}, slog.Default())

	raw := model.NewRawInput(args[0], method, referenceDate)

	expense, err := p.Process(ctx, raw)
	if err != nil {
		return reportFailure(cmd, err)
	}

	cmd.Printf("Recorded candidate:\n")
	cmd.Printf("  amount:      $%.2f\n", expense.Amount)
	cmd.Printf("  category:    %s\n", expense.Category)
	cmd.Printf("  description: %s\n", expense.Description)
	cmd.Printf("  date:        %s\n", expense.Date.Format("2006-01-02"))

	if viper.GetBool("process.no_save") {
		return nil
	}

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

	id, err := store.SaveExpense(ctx, expense)
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}

	cmd.Printf("Saved as expense #%d\n", id)
	return nil
}

// reportFailure turns pipeline failure values into user-facing
// messages. Understanding failures call for a rephrase; infrastructure
// failures call for a retry.
func reportFailure(cmd *cobra.Command, err error) error {
	if errors.Is(err, prompt.ErrEmptyInput) {
		return common.NewUserError("nothing to process: the input is empty", nil)
	}

	if f := pipeline.AsFailure(err); f != nil {
		if f.Retryable() {
			return common.NewUserError("service temporarily unavailable, try again", f)
		}
		return common.NewUserError("could not understand this expense, please rephrase or enter it manually", f)
	}

	return err
}

func parseMethod(s string) (model.InputMethod, error) {
	switch model.InputMethod(strings.ToLower(strings.TrimSpace(s))) {
	case model.MethodText:
		return model.MethodText, nil
	case model.MethodVoice:
		return model.MethodVoice, nil
	case model.MethodReceipt:
		return model.MethodReceipt, nil
	default:
		return "", fmt.Errorf("invalid input method %q (use text, voice, or receipt)", s)
	}
}
