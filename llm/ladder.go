package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ModelCaller generates with an explicit model identifier. Implemented by
// adapters whose provider exposes several models with independent quotas.
type ModelCaller interface {
	GenerateModel(ctx context.Context, model string, req *Request) (*Result, error)
	ProviderName() string
}

// ModelLadder tries a quality-ordered list of quota-isolated models within one
// provider. The primary model gets the full retry budget; fallback models get
// a smaller one since they are opportunistic rather than chosen for quality.
type ModelLadder struct {
	caller          ModelCaller
	primary         string
	models          []string
	primaryRetrier  *Retrier
	fallbackRetrier *Retrier
	logger          zerolog.Logger
}

// NewModelLadder creates a ladder over caller's models. primary is tried
// first; the remaining models keep their list order.
func NewModelLadder(caller ModelCaller, primary string, models []string, baseDelay time.Duration, logger zerolog.Logger) *ModelLadder {
	logger = logger.With().
		Str("component", "model_ladder").
		Str("provider", caller.ProviderName()).
		Logger()
	return &ModelLadder{
		caller:          caller,
		primary:         primary,
		models:          models,
		primaryRetrier:  NewRetrier(DefaultMaxRetries, baseDelay, logger),
		fallbackRetrier: NewRetrier(FallbackMaxRetries, baseDelay, logger),
		logger:          logger,
	}
}

// TryList returns the model attempt order: primary first, then every other
// listed model in order, without duplicates.
func (l *ModelLadder) TryList() []string {
	out := []string{l.primary}
	seen := map[string]bool{l.primary: true}
	for _, m := range l.models {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Generate implements Client. It fails only when every model in the try-list
// is exhausted or fatal; a non-quota failure on any model aborts immediately.
func (l *ModelLadder) Generate(ctx context.Context, req *Request) (*Result, error) {
	tryList := l.TryList()

	var lastErr error
	for i, model := range tryList {
		retrier := l.fallbackRetrier
		if model == l.primary {
			retrier = l.primaryRetrier
		}
		label := l.caller.ProviderName() + "/" + model

		if i > 0 {
			l.logger.Info().Str("model", model).Msg("Escalating to fallback model")
		}

		res, err := retrier.Do(ctx, label, func(ctx context.Context) (*Result, error) {
			return l.caller.GenerateModel(ctx, model, req)
		})
		if err == nil {
			return res, nil
		}
		if !ShouldEscalate(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, NewExhaustedError(
		fmt.Sprintf("%s: all models exhausted (%s)", l.caller.ProviderName(), strings.Join(tryList, ", ")),
		lastErr)
}

// ModelName implements Client.
func (l *ModelLadder) ModelName() string {
	return l.caller.ProviderName() + "/" + l.primary
}

var _ Client = (*ModelLadder)(nil)
