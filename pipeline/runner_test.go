package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testDeps() *Deps {
	return &Deps{Logger: zerolog.Nop()}
}

func noopStep(id string) Step {
	return Step{ID: id, Description: id, Run: func(ctx context.Context, run *Context, deps *Deps) error {
		return nil
	}}
}

func TestRunnerAllStepsSucceed(t *testing.T) {
	var order []string
	record := func(id string) Step {
		return Step{ID: id, Description: id, Run: func(ctx context.Context, run *Context, deps *Deps) error {
			order = append(order, id)
			return nil
		}}
	}
	r := NewRunnerWithSteps(testDeps(), []Step{record("one"), record("two"), record("three")})

	out := r.Run(context.Background(), &Context{JobURL: "https://example.com/job"})
	if out.Status != StatusSucceeded {
		t.Fatalf("Status = %v, want succeeded (err: %v)", out.Status, out.Err)
	}
	if out.FailedStep != 0 || out.Err != nil {
		t.Errorf("Success outcome must carry no failure info, got %+v", out)
	}
	if strings.Join(order, ",") != "one,two,three" {
		t.Errorf("Steps ran out of order: %v", order)
	}
}

func TestRunnerStepFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := Step{ID: "two", Description: "Second step", Run: func(ctx context.Context, run *Context, deps *Deps) error {
		return boom
	}}
	third := 0
	r := NewRunnerWithSteps(testDeps(), []Step{
		noopStep("one"),
		failing,
		{ID: "three", Description: "three", Run: func(ctx context.Context, run *Context, deps *Deps) error {
			third++
			return nil
		}},
	})

	out := r.Run(context.Background(), &Context{})
	if out.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", out.Status)
	}
	if out.FailedStep != 2 || out.FailedStepID != "two" {
		t.Errorf("Expected failure at step 2 (two), got %d (%s)", out.FailedStep, out.FailedStepID)
	}
	if !errors.Is(out.Err, boom) {
		t.Errorf("Expected wrapped original error, got %v", out.Err)
	}
	if !strings.Contains(out.Err.Error(), "step 2 (Second step) failed") {
		t.Errorf("Unexpected error message: %v", out.Err)
	}
	if third != 0 {
		t.Error("Steps after a failure must not run")
	}
}

func TestRunnerInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	interrupting := Step{ID: "one", Description: "one", Run: func(ctx context.Context, run *Context, deps *Deps) error {
		cancel()
		return ctx.Err()
	}}
	ran := 0
	r := NewRunnerWithSteps(testDeps(), []Step{
		interrupting,
		{ID: "two", Description: "two", Run: func(ctx context.Context, run *Context, deps *Deps) error {
			ran++
			return nil
		}},
	})

	out := r.Run(ctx, &Context{})
	if out.Status != StatusInterrupted {
		t.Fatalf("Status = %v, want interrupted", out.Status)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", out.Err)
	}
	if ran != 0 {
		t.Error("Steps after an interrupt must not run")
	}
}

func TestRunnerInterruptedBeforeStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := 0
	r := NewRunnerWithSteps(testDeps(), []Step{
		{ID: "one", Description: "one", Run: func(ctx context.Context, run *Context, deps *Deps) error {
			ran++
			return nil
		}},
	})

	out := r.Run(ctx, &Context{})
	if out.Status != StatusInterrupted {
		t.Fatalf("Status = %v, want interrupted", out.Status)
	}
	if ran != 0 {
		t.Error("No step should run on an already-canceled context")
	}
}

func TestRunnerMissingRequiredField(t *testing.T) {
	ran := 0
	r := NewRunnerWithSteps(testDeps(), []Step{
		{ID: "tailor", Description: "Tailor resume", Requires: []Field{FieldMasterResume},
			Run: func(ctx context.Context, run *Context, deps *Deps) error {
				ran++
				return nil
			}},
	})

	out := r.Run(context.Background(), &Context{})
	if out.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", out.Status)
	}
	if ran != 0 {
		t.Error("A step with unmet requirements must not run")
	}
	if !strings.Contains(out.Err.Error(), `required context field "master_resume" not set`) {
		t.Errorf("Unexpected error message: %v", out.Err)
	}
}

func TestRunnerSnapshotOnEveryExit(t *testing.T) {
	cases := []struct {
		name string
		step StepFunc
		want Status
	}{
		{"success", func(ctx context.Context, run *Context, deps *Deps) error {
			return nil
		}, StatusSucceeded},
		{"failure", func(ctx context.Context, run *Context, deps *Deps) error {
			return errors.New("boom")
		}, StatusFailed},
		{"interrupt", func(ctx context.Context, run *Context, deps *Deps) error {
			return context.Canceled
		}, StatusInterrupted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runDir := t.TempDir()
			r := NewRunnerWithSteps(testDeps(), []Step{
				{ID: "only", Description: "only", Run: tc.step},
			})
			out := r.Run(context.Background(), &Context{JobURL: "https://example.com", RunDir: runDir})
			if out.Status != tc.want {
				t.Fatalf("Status = %v, want %v", out.Status, tc.want)
			}
			wantPath := filepath.Join(runDir, SnapshotFile)
			if out.SnapshotPath != wantPath {
				t.Errorf("SnapshotPath = %q, want %q", out.SnapshotPath, wantPath)
			}
			if _, err := os.Stat(wantPath); err != nil {
				t.Errorf("Snapshot file missing: %v", err)
			}
		})
	}
}

func TestRunnerSnapshotFailureKeepsOutcome(t *testing.T) {
	r := NewRunnerWithSteps(testDeps(), []Step{noopStep("one")})
	// A run directory that is actually a file makes the snapshot write fail.
	runDir := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(runDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := r.Run(context.Background(), &Context{RunDir: runDir})
	if out.Status != StatusSucceeded {
		t.Errorf("Snapshot failure must not change the run outcome, got %v", out.Status)
	}
	if out.SnapshotPath != "" {
		t.Errorf("Expected empty snapshot path, got %q", out.SnapshotPath)
	}
}

func TestRunnerPlan(t *testing.T) {
	r := NewRunner(testDeps())

	plan := r.Plan(&Context{SkipTracking: true})
	if len(plan) != 9 {
		t.Fatalf("Expected 9 planned steps, got %d", len(plan))
	}
	byID := map[string]PlannedStep{}
	for _, p := range plan {
		byID[p.ID] = p
	}
	if byID["tracking"].Note != "SKIP" {
		t.Errorf("tracking note = %q, want SKIP", byID["tracking"].Note)
	}
	if byID["qa"].Note != "no questions" {
		t.Errorf("qa note = %q, want 'no questions'", byID["qa"].Note)
	}
	if byID["scrape"].Note != "RUN" {
		t.Errorf("scrape note = %q, want RUN", byID["scrape"].Note)
	}
	if byID["scrape"].Position != 1 {
		t.Errorf("scrape position = %d, want 1", byID["scrape"].Position)
	}

	withQuestions := r.Plan(&Context{Questions: []string{"Why here?"}})
	for _, p := range withQuestions {
		if p.ID == "qa" && p.Note != "RUN" {
			t.Errorf("qa with questions note = %q, want RUN", p.Note)
		}
	}
}
