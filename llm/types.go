package llm

import "context"

// Provider names. This is a closed set: the factory in the providers package
// rejects anything else at startup.
const (
	ProviderGemini     = "gemini"
	ProviderGroq       = "groq"
	ProviderSambaNova  = "sambanova"
	ProviderDeepSeek   = "deepseek"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// KnownProviders lists every supported provider name.
var KnownProviders = []string{
	ProviderGemini,
	ProviderGroq,
	ProviderSambaNova,
	ProviderDeepSeek,
	ProviderOpenRouter,
	ProviderAnthropic,
}

// Request represents a single generation call. Immutable per call.
type Request struct {
	System      string
	User        string
	Temperature float64
}

// Result is a successful generation. Provider identifies the provider/model
// that actually served the request (e.g. "groq/llama-3.3-70b-versatile") so
// callers get usage attribution without any shared mutable state.
type Result struct {
	Text     string
	Provider string
}

// Client is the provider-neutral generation interface. Implementations handle
// provider-specific request/response shapes internally and report failures as
// *Error values.
type Client interface {
	// Generate sends a request and returns the generated text.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// ModelName returns a stable provider/model identifier for logging and
	// usage attribution.
	ModelName() string
}
