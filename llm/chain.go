package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// RetryingClient wraps a single-model Client with a Retrier so the chain can
// treat every entry uniformly. Multi-model providers arrive already wrapped in
// a ModelLadder, which carries its own per-model retriers.
type RetryingClient struct {
	inner   Client
	retrier *Retrier
}

// WithRetry wraps client with the given retrier.
func WithRetry(client Client, retrier *Retrier) *RetryingClient {
	return &RetryingClient{inner: client, retrier: retrier}
}

// Generate implements Client.
func (c *RetryingClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	return c.retrier.Do(ctx, c.inner.ModelName(), func(ctx context.Context) (*Result, error) {
		return c.inner.Generate(ctx, req)
	})
}

// ModelName implements Client.
func (c *RetryingClient) ModelName() string { return c.inner.ModelName() }

// ChainEntry pairs a provider name with its live client.
type ChainEntry struct {
	Name   string
	Client Client
}

// FallbackChain composes provider clients into one logical client. Providers
// are tried strictly in order; a quota-like failure advances to the next
// provider, any other failure aborts immediately. A non-quota error would
// recur identically on every provider if it is a caller bug, so failing fast
// surfaces it instead of burning quota everywhere.
type FallbackChain struct {
	entries []ChainEntry
	logger  zerolog.Logger
}

// NewFallbackChain creates a chain over the given entries. Construction fails
// when the entry list is empty.
func NewFallbackChain(entries []ChainEntry, logger zerolog.Logger) (*FallbackChain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProviders
	}
	return &FallbackChain{
		entries: entries,
		logger:  logger.With().Str("component", "fallback_chain").Logger(),
	}, nil
}

// Providers returns the chain's provider names in attempt order.
func (c *FallbackChain) Providers() []string {
	return lo.Map(c.entries, func(e ChainEntry, _ int) string { return e.Name })
}

// Generate implements Client. The returned Result carries the provider/model
// that served the request.
func (c *FallbackChain) Generate(ctx context.Context, req *Request) (*Result, error) {
	var lastErr error
	var attempted []string

	for i, entry := range c.entries {
		attempted = append(attempted, entry.Name)

		if i > 0 {
			c.logger.Info().
				Str("provider", entry.Name).
				Msg("Falling back to next provider")
		}

		res, err := entry.Client.Generate(ctx, req)
		if err == nil {
			if res.Provider == "" {
				res.Provider = entry.Client.ModelName()
			}
			return res, nil
		}
		if !ShouldEscalate(err) {
			return nil, err
		}
		c.logger.Warn().
			Str("provider", entry.Name).
			Err(err).
			Msg("Provider exhausted, escalating")
		lastErr = err
	}

	return nil, NewProviderError(
		fmt.Sprintf("all providers exhausted (%s)", strings.Join(attempted, ", ")),
		0, false, lastErr)
}

// ModelName implements Client, reporting the primary entry.
func (c *FallbackChain) ModelName() string {
	return c.entries[0].Client.ModelName()
}

var _ Client = (*RetryingClient)(nil)
var _ Client = (*FallbackChain)(nil)
