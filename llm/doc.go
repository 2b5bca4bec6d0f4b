// Package llm provides a provider-neutral client layer for text generation.
//
// The package is organized in layers, innermost first:
//
//   - Adapters (llm/gemini, llm/openaicompat, llm/anthropic) translate a
//     Request into one provider-specific API call and classify every failure
//     into a structured *Error.
//   - Retrier wraps a single adapter+model pair with a bounded retry budget.
//     Transient network failures back off exponentially; rate limits honor the
//     server's retry hint; anything else fails immediately.
//   - ModelLadder tries a quality-ordered list of quota-isolated models within
//     one provider, moving on when a model's budget is exhausted.
//   - FallbackChain composes providers into one logical client. Quota-like
//     failures advance to the next provider; non-quota failures abort the call.
//
// Escalation decisions are driven entirely by structured fields on *Error,
// never by matching error message text. Every successful Result carries the
// provider/model that served it so callers can attribute usage without shared
// mutable state.
package llm
