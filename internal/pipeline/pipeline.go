package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/llm"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/prompt"
	"github.com/pennyflow/pennyflow/internal/schema"
	"github.com/pennyflow/pennyflow/internal/service"
)

// State tracks a single pipeline invocation through its state machine.
// Each invocation owns its own state; nothing is shared across requests.
type State string

// Pipeline states.
const (
	StateIdle        State = "idle"
	StateExtracting  State = "extracting"
	StateValidating  State = "validating"
	StateDoneSuccess State = "done_success"
	StateDoneFailure State = "done_failure"
)

// Config holds pipeline tuning knobs. Timeouts are per model call and
// independent per stage.
type Config struct {
	ExtractionTimeout time.Duration
	ValidationTimeout time.Duration
	RateLimit         int // model calls per minute across invocations
	RetryDelay        time.Duration
}

// Pipeline sequences extraction then validation and is the only entry
// point external callers use.
type Pipeline struct {
	extractor *Extractor
	validator *Validator
	limiter   *llm.RateLimiter
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// New creates a pipeline on top of the given model client.
func New(client llm.Client, cfg Config, logger *slog.Logger) *Pipeline {
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}

	return &Pipeline{
		extractor: NewExtractor(client, cfg.ExtractionTimeout, logger),
		validator: NewValidator(client, cfg.ValidationTimeout, logger),
		limiter:   llm.NewRateLimiter(cfg.RateLimit),
		logger:    logger,
		// At most one retry per stage, and only for transient model
		// errors; see retryable below.
		retryOpts: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: retryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Process runs one invocation: Idle -> Extracting -> Validating ->
// Done. Returns the validated expense, prompt.ErrEmptyInput for blank
// input (before any model call), or a *Failure. The pipeline holds no
// state across invocations.
func (p *Pipeline) Process(ctx context.Context, raw model.RawInput) (*model.ValidatedExpense, error) {
	// Fail fast before entering the state machine; the model call is
	// the expensive step and empty input can never produce an expense.
	if _, err := prompt.Build(prompt.StageExtraction, raw, nil); err != nil {
		return nil, err
	}

	state := StateExtracting
	p.logger.Debug("pipeline started", "state", state, "method", raw.Method)

	var candidate *model.ExtractionCandidate
	err := p.runStage(ctx, func() error {
		var stageErr error
		candidate, stageErr = p.extractor.Extract(ctx, raw)
		return stageErr
	})
	if err != nil {
		return nil, p.fail(&state, raw, candidate, err)
	}

	state = StateValidating
	p.logger.Debug("pipeline state", "state", state)

	var expense *model.ValidatedExpense
	err = p.runStage(ctx, func() error {
		var stageErr error
		expense, stageErr = p.validator.Validate(ctx, raw, candidate)
		return stageErr
	})
	if err != nil {
		return nil, p.fail(&state, raw, candidate, err)
	}

	// Defensive final check. Validation promises schema conformance, so
	// a violation here is a defect in the validation stage, not bad
	// user input; it is logged loudly and still returned as data.
	if violations := schema.ValidateExpense(*expense, raw.ReferenceDate); len(violations) > 0 {
		reasons := make([]string, len(violations))
		for i, v := range violations {
			reasons[i] = v.String()
		}
		p.logger.Error("validated expense violates schema",
			"violations", reasons,
			"category", expense.Category,
			"amount", expense.Amount)
		state = StateDoneFailure
		return nil, &Failure{
			Kind:       FailureSchemaViolation,
			Reason:     strings.Join(reasons, "; "),
			Provenance: expense.Provenance,
		}
	}

	state = StateDoneSuccess
	p.logger.Info("expense accepted",
		"state", state,
		"category", expense.Category,
		"amount", expense.Amount,
		"date", expense.Date.Format("2006-01-02"),
		"method", raw.Method)

	return expense, nil
}

// runStage executes one stage under the rate limiter and the bounded
// retry policy: a single retry for Timeout/RateLimited model errors,
// fail-fast for everything else.
func (p *Pipeline) runStage(ctx context.Context, op func() error) error {
	return common.WithRetry(ctx, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return &common.RetryableError{Err: &llm.ModelError{Kind: llm.KindTimeout, Err: err}, Retryable: false}
		}
		if err := op(); err != nil {
			return &common.RetryableError{Err: err, Retryable: llm.IsTransient(err)}
		}
		return nil
	}, p.retryOpts)
}

// fail converts a stage error into the terminal failure value,
// attaching provenance.
func (p *Pipeline) fail(state *State, raw model.RawInput, candidate *model.ExtractionCandidate, err error) error {
	*state = StateDoneFailure

	if f := AsFailure(err); f != nil {
		p.logger.Info("pipeline failed", "kind", f.Kind, "reason", f.Reason)
		return f
	}

	// Anything else is an infrastructure failure from the model
	// backend (or a cancelled invocation).
	reason := err.Error()
	if errors.Is(err, context.Canceled) {
		reason = "invocation canceled"
	}
	f := &Failure{
		Kind:   FailureModelUnavailable,
		Reason: reason,
		Provenance: model.Provenance{
			RawInput:  raw,
			Candidate: candidate,
		},
	}
	p.logger.Warn("pipeline failed", "kind", f.Kind, "reason", f.Reason)
	return f
}
