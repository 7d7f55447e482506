package catalog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/storage"
)

const defaultRetryDelay = 30 * time.Second

// Paths locates the three stages of the catalog.
type Paths struct {
	Raw   string
	Stage string
	Final string
}

// Pipeline runs ingest, validate and store in sequence, retrying failed runs.
type Pipeline struct {
	paths      Paths
	retries    int
	retryDelay time.Duration
	interval   time.Duration
	ledger     storage.Ledger // optional
	logger     *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for step progress.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithLedger records every attempt in ledger.
func WithLedger(l storage.Ledger) PipelineOption {
	return func(p *Pipeline) { p.ledger = l }
}

// WithRetries sets how many extra attempts follow a failed run.
func WithRetries(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d >= 0 {
			p.retryDelay = d
		}
	}
}

// WithInterval sets the period used by Schedule.
func WithInterval(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// NewPipeline creates a pipeline over paths. By default a failed run is retried once.
func NewPipeline(paths Paths, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		paths:      paths,
		retries:    1,
		retryDelay: defaultRetryDelay,
		interval:   24 * time.Hour,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes ingest, validate and store. If any step fails the whole run is attempted again,
// up to the configured number of retries; the last error is returned. Store never runs for an
// attempt whose validation failed.
func (p *Pipeline) Run(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= p.retries+1; attempt++ {
		if attempt > 1 {
			p.logger.Warn("catalog run failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", p.retryDelay), zap.Error(err))
			if waitErr := sleep(ctx, p.retryDelay); waitErr != nil {
				return waitErr
			}
		}
		err = p.attempt(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (p *Pipeline) attempt(ctx context.Context, attempt int) error {
	run := &models.CatalogRun{Attempt: attempt}
	if p.ledger != nil {
		if err := p.ledger.StartCatalogRun(ctx, run); err != nil {
			return err
		}
	}
	rows, err := p.runSteps()
	run.Rows = rows
	run.Status = models.RunStatusSucceeded
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			run.Step = stepErr.Step
		}
	}
	if p.ledger != nil {
		if ledgerErr := p.ledger.FinishCatalogRun(context.Background(), run); ledgerErr != nil {
			p.logger.Error("record catalog run", zap.String("run_id", run.ID), zap.Error(ledgerErr))
		}
	}
	return err
}

func (p *Pipeline) runSteps() (int, error) {
	rows, err := Ingest(p.paths.Raw, p.paths.Stage)
	if err != nil {
		return 0, &StepError{Step: StepIngest, Err: err}
	}
	p.logger.Info("catalog ingested", zap.String("stage", p.paths.Stage), zap.Int("rows", rows))

	if _, err := Validate(p.paths.Stage); err != nil {
		return rows, &StepError{Step: StepValidate, Err: err}
	}
	p.logger.Info("catalog validated", zap.Int("rows", rows))

	rows, err = Store(p.paths.Stage, p.paths.Final)
	if err != nil {
		return rows, &StepError{Step: StepStore, Err: err}
	}
	p.logger.Info("catalog stored", zap.String("final", p.paths.Final), zap.Int("rows", rows))
	return rows, nil
}

// Schedule runs the pipeline immediately and then once per interval until ctx is cancelled.
// Failed runs are logged; the schedule keeps going.
func (p *Pipeline) Schedule(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("catalog run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
