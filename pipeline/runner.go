package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Status is a terminal run state.
type Status string

const (
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// StepFunc runs one pipeline step, reading and extending the run context.
type StepFunc func(ctx context.Context, run *Context, deps *Deps) error

// Step is one named stage of the pipeline.
type Step struct {
	ID          string
	Description string
	Requires    []Field
	Run         StepFunc
}

// Outcome describes how a run ended. FailedStep is the 1-based
// position of the failing step, 0 on success.
type Outcome struct {
	Status       Status
	FailedStep   int
	FailedStepID string
	Err          error
	SnapshotPath string
}

// Runner executes pipeline steps in order.
type Runner struct {
	steps  []Step
	deps   *Deps
	logger zerolog.Logger
}

// NewRunner builds a runner over the standard step list.
func NewRunner(deps *Deps) *Runner {
	return &Runner{
		steps:  Steps(),
		deps:   deps,
		logger: deps.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// NewRunnerWithSteps builds a runner over a custom step list.
func NewRunnerWithSteps(deps *Deps, steps []Step) *Runner {
	r := NewRunner(deps)
	r.steps = steps
	return r
}

// Run executes the steps against the run context. A step error ends
// the run as failed; context cancellation ends it as interrupted; if
// every step returns nil the run succeeded. The snapshot is persisted
// on every exit path, and a snapshot write failure never changes the
// outcome.
func (r *Runner) Run(ctx context.Context, run *Context) Outcome {
	total := len(r.steps)
	for i, step := range r.steps {
		pos := i + 1

		if err := ctx.Err(); err != nil {
			r.logger.Warn().Int("step", pos).Msg("run interrupted")
			return r.finish(run, Outcome{
				Status: StatusInterrupted, FailedStep: pos, FailedStepID: step.ID, Err: err,
			})
		}

		if err := r.checkRequires(run, pos, step); err != nil {
			return r.finish(run, Outcome{
				Status: StatusFailed, FailedStep: pos, FailedStepID: step.ID, Err: err,
			})
		}

		r.logger.Info().
			Int("step", pos).
			Int("total", total).
			Str("id", step.ID).
			Msg(step.Description)

		if err := step.Run(ctx, run, r.deps); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.logger.Warn().Int("step", pos).Str("id", step.ID).Msg("run interrupted")
				return r.finish(run, Outcome{
					Status: StatusInterrupted, FailedStep: pos, FailedStepID: step.ID, Err: err,
				})
			}
			wrapped := fmt.Errorf("step %d (%s) failed: %w", pos, step.Description, err)
			r.logger.Error().Err(err).Int("step", pos).Str("id", step.ID).Msg("step failed")
			return r.finish(run, Outcome{
				Status: StatusFailed, FailedStep: pos, FailedStepID: step.ID, Err: wrapped,
			})
		}
	}
	return r.finish(run, Outcome{Status: StatusSucceeded})
}

func (r *Runner) checkRequires(run *Context, pos int, step Step) error {
	for _, field := range step.Requires {
		if !run.Has(field) {
			return fmt.Errorf("step %d (%s): required context field %q not set",
				pos, step.Description, field)
		}
	}
	return nil
}

func (r *Runner) finish(run *Context, out Outcome) Outcome {
	path, err := SaveSnapshot(run)
	if err != nil {
		// The snapshot is a debugging aid; losing it must not mask
		// the run's real outcome.
		r.logger.Warn().Err(err).Msg("saving context snapshot failed")
		return out
	}
	out.SnapshotPath = path
	if path != "" {
		r.logger.Debug().Str("path", path).Msg("context snapshot saved")
	}
	return out
}

// PlannedStep is one row of a dry-run plan.
type PlannedStep struct {
	Position    int
	ID          string
	Description string
	Note        string
}

// Plan reports what Run would do without executing anything.
func (r *Runner) Plan(run *Context) []PlannedStep {
	plan := make([]PlannedStep, 0, len(r.steps))
	for i, step := range r.steps {
		note := "RUN"
		switch {
		case step.ID == stepIDTracking && run.SkipTracking:
			note = "SKIP"
		case step.ID == stepIDQA && len(run.Questions) == 0:
			note = "no questions"
		}
		plan = append(plan, PlannedStep{
			Position:    i + 1,
			ID:          step.ID,
			Description: step.Description,
			Note:        note,
		})
	}
	return plan
}
