package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"docmind/internal/quota"
)

// batchConcurrency bounds how many skills of one batch run at once.
const batchConcurrency = 4

// Invocation names one skill run inside a batch.
type Invocation struct {
	SkillID string
	Context Context
}

// Execute runs skill id. It never returns an error and never panics: lookup,
// tier, quota and executor failures all become Result{Success: false}.
func (r *Registry) Execute(ctx context.Context, id string, sc Context) Result {
	r.mu.RLock()
	e, ok := r.entries[id]
	var (
		manifest Manifest
		exec     Executor
	)
	if ok {
		manifest, exec = e.manifest, e.exec
	}
	r.mu.RUnlock()

	if !ok {
		return failed(id, fmt.Errorf("%w: %s", ErrSkillNotFound, id))
	}
	if !sc.Tier.Allows(manifest.MinimumTier) {
		return failed(id, fmt.Errorf("%w: %s requires %s, account is %q", ErrTierTooLow, id, manifest.MinimumTier, sc.Tier))
	}

	metered := r.quota != nil && sc.AccountID != ""
	if metered && manifest.QuotaCost > 0 {
		if _, err := r.quota.Check(ctx, sc.AccountID, manifest.QuotaCost); err != nil {
			return failed(id, err)
		}
	}
	if sc.LLM == nil {
		sc.LLM = r.llm
	}

	start := r.now()
	res, err := runExecutor(ctx, manifest.ID, exec, sc)
	latency := r.now().Sub(start)
	if err != nil {
		slog.Warn("skill execution failed", "skill", id, "err", err)
		res = failed(id, err)
	}
	res.SkillID = id

	if metered {
		if res.Success && manifest.QuotaCost > 0 {
			if err := r.quota.Consume(context.WithoutCancel(ctx), sc.AccountID, manifest.QuotaCost); err != nil {
				slog.Warn("skill quota consume failed", "skill", id, "account", sc.AccountID, "err", err)
			}
		}
		rec := quota.Record{
			AccountID:        sc.AccountID,
			Category:         manifest.Category,
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
			Success:          res.Success,
			Latency:          latency,
		}
		if res.Success {
			rec.QuotaUnits = manifest.QuotaCost
		}
		if err := r.quota.RecordUsage(context.WithoutCancel(ctx), rec); err != nil {
			slog.Warn("recording skill usage failed", "skill", id, "err", err)
		}
	}
	return res
}

// ExecuteBatch runs invocations concurrently. One failure never aborts the
// others; results are returned in invocation order.
func (r *Registry) ExecuteBatch(ctx context.Context, invocations []Invocation) []Result {
	results := make([]Result, len(invocations))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, inv := range invocations {
		g.Go(func() error {
			results[i] = r.Execute(ctx, inv.SkillID, inv.Context)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runExecutor(ctx context.Context, id string, exec Executor, sc Context) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("skill executor panicked", "skill", id, "panic", rec)
			err = &ExecutionError{SkillID: id, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	res, err = exec.Execute(ctx, sc)
	if err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			err = &ExecutionError{SkillID: id, Err: err}
		}
		return Result{}, err
	}
	if !res.Success && res.Error == "" {
		res.Success = true
	}
	return res, nil
}

func failed(id string, err error) Result {
	return Result{SkillID: id, Success: false, Error: err.Error(), Err: err}
}
