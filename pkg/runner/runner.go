// Package runner orchestrates discovery, resolution, validation and
// admission into one bounded pipeline per run.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scoutline-dev/scoutline/pkg/dedupe"
	"github.com/scoutline-dev/scoutline/pkg/discover"
	"github.com/scoutline-dev/scoutline/pkg/emailx"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/validate"
)

// Store is the persistence surface the controller needs.
type Store interface {
	CreateRun(ctx context.Context, run *prospect.Run) error
	UpdateRun(ctx context.Context, run *prospect.Run) error
	GetRun(ctx context.Context, id string) (*prospect.Run, error)
	CreateAttempt(ctx context.Context, a *prospect.Attempt) error
	CreateProspect(ctx context.Context, p *prospect.Prospect) error
	FindProspectsByIdentity(ctx context.Context, fields []string) ([]*prospect.Prospect, error)
}

// Resolver resolves handles into snapshots.
type Resolver interface {
	Resolve(ctx context.Context, platform prospect.Platform, username string) (*prospect.Snapshot, error)
	IsPrivate(ctx context.Context, platform prospect.Platform, username string) (bool, error)
}

// Progress is the observer-facing view of a run.
type Progress struct {
	Status         prospect.RunStatus `json:"status"`
	TotalProcessed int                `json:"total_processed"`
	TotalFound     int                `json:"total_found"`
	Errors         string             `json:"errors,omitempty"`
}

// Runner launches, supervises and cancels run pipelines. Each run is an
// independent pipeline; runs share nothing but the store and whatever
// pacing group the strategies and resolver were built with.
type Runner struct {
	store      Store
	resolver   Resolver
	strategies []discover.Strategy
	logger     *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithStrategies sets the discovery strategies in fallback order: the
// first strategy is tried first, later ones pick up its shortfall.
func WithStrategies(strategies ...discover.Strategy) Option {
	return func(r *Runner) { r.strategies = strategies }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a run controller.
func New(st Store, res Resolver, opts ...Option) *Runner {
	r := &Runner{
		store:    st,
		resolver: res,
		logger:   slog.Default(),
		active:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the config, persists a pending run and launches its
// pipeline. It returns the run ID immediately.
func (r *Runner) Start(ctx context.Context, cfg prospect.RunConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid run config: %w", err)
	}

	run := &prospect.Run{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    prospect.RunPending,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	// The pipeline outlives the caller's request context.
	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.active[run.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.active, run.ID)
			r.mu.Unlock()
		}()
		r.execute(runCtx, run)
	}()

	r.logger.InfoContext(ctx, "run launched", "run_id", run.ID,
		"regions", cfg.Regions, "target", cfg.TargetCount)
	return run.ID, nil
}

// Cancel requests cooperative cancellation of a running run. The
// pipeline observes it at the next candidate boundary.
func (r *Runner) Cancel(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s already %s", runID, run.Status)
	}

	r.mu.Lock()
	cancel, ok := r.active[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s has no active pipeline", runID)
	}
	cancel()
	r.logger.InfoContext(ctx, "run cancellation requested", "run_id", runID)
	return nil
}

// Progress reports a run's counters and status.
func (r *Runner) Progress(ctx context.Context, runID string) (*Progress, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Progress{
		Status:         run.Status,
		TotalProcessed: run.TotalProcessed,
		TotalFound:     run.TotalFound,
		Errors:         run.ErrorLog,
	}, nil
}

// Wait blocks until every active pipeline has finished. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// execute drives one run to a terminal state, whatever happens inside.
func (r *Runner) execute(ctx context.Context, run *prospect.Run) {
	// Store writes during finalization must survive the run's own
	// cancellation.
	finalCtx, cancelFinal := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancelFinal()

	run.Status = prospect.RunRunning
	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.finalize(finalCtx, run, prospect.RunFailed, err)
		return
	}

	err := r.pipeline(ctx, run)
	switch {
	case err == nil:
		r.finalize(finalCtx, run, prospect.RunCompleted, nil)
	case errors.Is(err, context.Canceled):
		r.finalize(finalCtx, run, prospect.RunCancelled, nil)
	default:
		r.finalize(finalCtx, run, prospect.RunFailed, err)
	}
}

func (r *Runner) finalize(ctx context.Context, run *prospect.Run, status prospect.RunStatus, cause error) {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	if cause != nil {
		run.ErrorLog = appendLog(run.ErrorLog, cause.Error())
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.logger.Error("failed to persist terminal run state",
			"run_id", run.ID, "status", status, "error", err)
	}
	r.logger.Info("run finished", "run_id", run.ID, "status", status,
		"processed", run.TotalProcessed, "found", run.TotalFound)
}

// pipeline works through regions and strategies until the target is met
// or every source is exhausted.
func (r *Runner) pipeline(ctx context.Context, run *prospect.Run) error {
	admission := dedupe.New(r.store, r.logger)

	for _, region := range run.Config.Regions {
		for _, strategy := range r.strategies {
			if run.TotalFound >= run.Config.TargetCount {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			budget := discoveryBudget(run)
			handles, err := strategy.Discover(ctx, region, &run.Config, budget)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// A failing strategy falls through to the next one.
				r.logger.WarnContext(ctx, "discovery strategy failed",
					"run_id", run.ID, "strategy", strategy.Name(), "region", region, "error", err)
				run.ErrorLog = appendLog(run.ErrorLog,
					fmt.Sprintf("%s/%s: %v", strategy.Name(), region, err))
				continue
			}

			fresh, err := admission.PreFilter(ctx, handles)
			if err != nil {
				return fmt.Errorf("pre-filter: %w", err)
			}

			for _, handle := range fresh {
				// Cancellation is observed only here, at the candidate
				// boundary; an in-flight resolution always completes.
				if err := ctx.Err(); err != nil {
					return err
				}
				if run.TotalFound >= run.Config.TargetCount {
					return nil
				}

				r.processCandidate(ctx, run, admission, handle)

				if err := r.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
					return fmt.Errorf("persist run progress: %w", err)
				}
			}
		}
	}
	return nil
}

// discoveryBudget sizes a strategy call: resolve enough candidates to
// plausibly fill the remaining target given loss to validation and
// duplicates.
func discoveryBudget(run *prospect.Run) int {
	remaining := run.Config.TargetCount - run.TotalFound
	budget := remaining * 4
	if budget < 10 {
		budget = 10
	}
	return budget
}

// processCandidate takes one handle through resolution, validation and
// admission. Whatever happens, exactly one Attempt row records it; no
// candidate-level failure escapes.
func (r *Runner) processCandidate(ctx context.Context, run *prospect.Run, admission *dedupe.Controller, handle prospect.Handle) {
	started := time.Now()
	attempt := &prospect.Attempt{
		ID:         uuid.NewString(),
		RunID:      run.ID,
		Platform:   handle.Platform,
		Username:   handle.Username,
		ProfileURL: prospect.ProfileURL(handle.Platform, handle.Username),
		Region:     handle.Region,
		CreatedAt:  started.UTC(),
	}
	run.TotalProcessed++

	// One Attempt row per (run, handle): later strategies or regions
	// re-emitting this handle must be pre-filtered out, whatever the
	// outcome below.
	admission.MarkProcessed(handle)

	defer func() {
		attempt.Duration = time.Since(started)
		// The audit row must land even when the run was just cancelled.
		if err := r.store.CreateAttempt(context.WithoutCancel(ctx), attempt); err != nil {
			r.logger.Error("failed to persist attempt",
				"run_id", run.ID, "handle", handle.Key(), "error", err)
			run.ErrorLog = appendLog(run.ErrorLog,
				fmt.Sprintf("attempt %s: %v", handle.Key(), err))
		}
	}()

	// Cheap privacy pre-check short-circuits before full resolution.
	if private, err := r.resolver.IsPrivate(ctx, handle.Platform, handle.Username); err == nil && private {
		attempt.Status = prospect.AttemptSkippedPrivate
		return
	}

	snapshot, err := r.resolver.Resolve(ctx, handle.Platform, handle.Username)
	switch {
	case err == nil:
	case errors.Is(err, prospect.ErrPrivateAccount):
		attempt.Status = prospect.AttemptSkippedPrivate
		return
	case errors.Is(err, prospect.ErrProfileNotFound):
		attempt.Status = prospect.AttemptNotFound
		attempt.Error = err.Error()
		return
	default:
		attempt.Status = prospect.AttemptFailed
		attempt.Error = err.Error()
		return
	}

	if snapshot.Private {
		attempt.Status = prospect.AttemptSkippedPrivate
		return
	}

	if raw, merr := json.Marshal(snapshot); merr == nil {
		attempt.RawPayload = raw
	}

	if err := validate.Eligible(snapshot, &run.Config); err != nil {
		// A resolved profile failing business rules is not an error.
		attempt.Status = prospect.AttemptSuccess
		attempt.Error = "validation: " + err.Error()
		return
	}

	dup, err := admission.IsDuplicate(ctx, snapshot)
	if err != nil {
		attempt.Status = prospect.AttemptFailed
		attempt.Error = err.Error()
		return
	}
	if dup {
		attempt.Status = prospect.AttemptSuccess
		attempt.Error = "duplicate identity"
		return
	}

	p := prospect.FromSnapshot(snapshot, handle.Region, run.ID)
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	if email, ok := emailx.Extract(snapshot.Bio); ok {
		p.Email = email
	}

	if err := r.store.CreateProspect(context.WithoutCancel(ctx), p); err != nil {
		attempt.Status = prospect.AttemptFailed
		attempt.Error = err.Error()
		return
	}
	admission.Admit(snapshot)

	attempt.Status = prospect.AttemptSuccess
	attempt.ProspectID = p.ID
	run.TotalFound++

	r.logger.InfoContext(ctx, "prospect admitted", "run_id", run.ID,
		"prospect_id", p.ID, "handle", handle.Key(), "followers", snapshot.Followers)
}

func appendLog(log, entry string) string {
	if log == "" {
		return entry
	}
	return log + "\n" + entry
}
