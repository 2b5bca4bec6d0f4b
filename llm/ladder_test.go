package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeCaller scripts per-model responses for ladder tests.
type fakeCaller struct {
	name      string
	responses map[string]func() (*Result, error)
	calls     []string
}

func (f *fakeCaller) GenerateModel(ctx context.Context, model string, req *Request) (*Result, error) {
	f.calls = append(f.calls, model)
	if fn, ok := f.responses[model]; ok {
		return fn()
	}
	return &Result{Text: "from " + model}, nil
}

func (f *fakeCaller) ProviderName() string { return f.name }

func newTestLadder(caller *fakeCaller, primary string, models []string) *ModelLadder {
	l := NewModelLadder(caller, primary, models, time.Millisecond, zerolog.Nop())
	noSleep := func(ctx context.Context, d time.Duration) error { return nil }
	l.primaryRetrier.Sleep = noSleep
	l.fallbackRetrier.Sleep = noSleep
	return l
}

func TestModelLadderTryList(t *testing.T) {
	caller := &fakeCaller{name: "gemini"}
	l := newTestLadder(caller, "flash", []string{"flash", "flash-lite", "pro"})

	got := l.TryList()
	want := []string{"flash", "flash-lite", "pro"}
	if len(got) != len(want) {
		t.Fatalf("TryList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TryList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestModelLadderTryListPrimaryNotInList(t *testing.T) {
	caller := &fakeCaller{name: "gemini"}
	l := newTestLadder(caller, "pro", []string{"flash", "flash-lite"})

	got := l.TryList()
	if len(got) != 3 || got[0] != "pro" {
		t.Errorf("Expected primary first in %v", got)
	}
}

func TestModelLadderPrimarySucceeds(t *testing.T) {
	caller := &fakeCaller{name: "gemini"}
	l := newTestLadder(caller, "flash", []string{"flash", "pro"})

	res, err := l.Generate(context.Background(), &Request{User: "hello"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Text != "from flash" {
		t.Errorf("Expected primary model result, got %q", res.Text)
	}
	if len(caller.calls) != 1 {
		t.Errorf("Expected 1 call, got %v", caller.calls)
	}
}

func TestModelLadderEscalatesOnQuota(t *testing.T) {
	caller := &fakeCaller{
		name: "gemini",
		responses: map[string]func() (*Result, error){
			"flash": func() (*Result, error) {
				return nil, NewDailyQuotaError("flash is out for today", nil)
			},
		},
	}
	l := newTestLadder(caller, "flash", []string{"flash", "pro"})

	res, err := l.Generate(context.Background(), &Request{User: "hello"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Text != "from pro" {
		t.Errorf("Expected fallback model result, got %q", res.Text)
	}
	if len(caller.calls) != 2 {
		t.Errorf("Expected [flash pro], got %v", caller.calls)
	}
}

func TestModelLadderAbortsOnFatalError(t *testing.T) {
	fatal := NewInvalidRequestError("bad request", 400, nil)
	caller := &fakeCaller{
		name: "gemini",
		responses: map[string]func() (*Result, error){
			"flash": func() (*Result, error) { return nil, fatal },
		},
	}
	l := newTestLadder(caller, "flash", []string{"flash", "pro"})

	_, err := l.Generate(context.Background(), &Request{User: "hello"})
	if !errors.Is(err, fatal) {
		t.Fatalf("Expected fatal error back, got %v", err)
	}
	if len(caller.calls) != 1 {
		t.Errorf("Fatal error must not escalate to other models, calls: %v", caller.calls)
	}
}

func TestModelLadderAllModelsExhausted(t *testing.T) {
	quota := func() (*Result, error) {
		return nil, NewDailyQuotaError("quota", nil)
	}
	caller := &fakeCaller{
		name: "gemini",
		responses: map[string]func() (*Result, error){
			"flash": quota,
			"pro":   quota,
		},
	}
	l := newTestLadder(caller, "flash", []string{"flash", "pro"})

	_, err := l.Generate(context.Background(), &Request{User: "hello"})
	if err == nil {
		t.Fatal("Expected error when every model is exhausted")
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) || llmErr.Type != ErrorTypeExhausted {
		t.Fatalf("Expected exhausted error, got %v", err)
	}
	if !ShouldEscalate(err) {
		t.Error("Ladder exhaustion must remain escalatable for the chain")
	}
	if !strings.Contains(err.Error(), "gemini") {
		t.Errorf("Expected provider name in message, got %q", err.Error())
	}
}

func TestModelLadderModelName(t *testing.T) {
	caller := &fakeCaller{name: "gemini"}
	l := newTestLadder(caller, "flash", []string{"flash"})
	if l.ModelName() != "gemini/flash" {
		t.Errorf("ModelName = %q, want gemini/flash", l.ModelName())
	}
}
