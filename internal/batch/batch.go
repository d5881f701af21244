// Package batch fans the pipeline out over many loans with bounded
// concurrency. Loans are independent: one loan's failure is recorded, never
// propagated to cancel its siblings.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	loan "loanops/internal/loan/models"
	"loanops/internal/loan/store"
	"loanops/internal/ops/pipeline"
	pstrings "loanops/pkg/platform/strings"
)

const defaultConcurrency = 4

// ItemResult is the outcome for one loan in a batch.
type ItemResult struct {
	LoanID string
	Result *pipeline.Result
	Err    error
}

// Summary aggregates a batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	ByStatus  map[loan.FundingStatus]int
	Items     []ItemResult
}

// Runner drives pipeline runs across a loan store.
type Runner struct {
	pipeline    *pipeline.Pipeline
	store       store.LoanStore
	logger      *slog.Logger
	concurrency int
}

// Option configures the Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithConcurrency bounds the number of loans processed in parallel.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func New(p *pipeline.Pipeline, s store.LoanStore, opts ...Option) *Runner {
	r := &Runner{
		pipeline:    p,
		store:       s,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline for every listed loan and persists each updated
// record. Only context cancellation stops the batch early.
func (r *Runner) Run(ctx context.Context, loanIDs []string) (*Summary, error) {
	loanIDs = pstrings.DedupeAndTrim(loanIDs)
	if len(loanIDs) == 0 {
		records, err := r.store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			loanIDs = append(loanIDs, record.LoanID)
		}
	}

	var mu sync.Mutex
	items := make([]ItemResult, 0, len(loanIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range loanIDs {
		g.Go(func() error {
			item := r.runOne(gctx, id)
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
			// Per-loan failures are outcomes, not batch errors.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].LoanID < items[j].LoanID })

	summary := &Summary{
		Total:    len(items),
		ByStatus: make(map[loan.FundingStatus]int),
		Items:    items,
	}
	for _, item := range items {
		if item.Err != nil {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		summary.ByStatus[item.Result.FinalStatus]++
	}
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, id string) ItemResult {
	record, err := r.store.Get(ctx, id)
	if err != nil {
		r.logFailure(ctx, id, "load", err)
		return ItemResult{LoanID: id, Err: err}
	}
	result, err := r.pipeline.Run(ctx, record)
	if err != nil {
		r.logFailure(ctx, id, "run", err)
		return ItemResult{LoanID: id, Err: err}
	}
	if err := r.store.Put(ctx, record); err != nil {
		r.logFailure(ctx, id, "persist", err)
		return ItemResult{LoanID: id, Err: err}
	}
	return ItemResult{LoanID: id, Result: result}
}

func (r *Runner) logFailure(ctx context.Context, id, phase string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.ErrorContext(ctx, "batch item failed",
		"loan_id", id, "phase", phase, "error", err)
}
