// Package providers turns configuration into live fallback chains. It is the
// only place that knows how to construct each concrete adapter; the llm
// package stays free of provider imports.
package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/llm"
	"github.com/mlopez/jobquest/llm/anthropic"
	"github.com/mlopez/jobquest/llm/gemini"
	"github.com/mlopez/jobquest/llm/openaicompat"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultFallbackOrder is the standard chain: free-tier providers first.
var DefaultFallbackOrder = []string{
	llm.ProviderGemini,
	llm.ProviderGroq,
	llm.ProviderSambaNova,
	llm.ProviderDeepSeek,
	llm.ProviderOpenRouter,
	llm.ProviderAnthropic,
}

// WritingPriorityOrder is the chain for quality-critical writing calls:
// paid/high-quality providers first, free tiers as last resort. Same
// mechanics, different configuration.
var WritingPriorityOrder = []string{
	llm.ProviderDeepSeek,
	llm.ProviderAnthropic,
	llm.ProviderOpenRouter,
	llm.ProviderGemini,
	llm.ProviderGroq,
	llm.ProviderSambaNova,
}

// CredentialVars maps each provider to the environment variable that enables
// it, for error messages and the providers command.
var CredentialVars = map[string]string{
	llm.ProviderGemini:     "GEMINI_API_KEY",
	llm.ProviderGroq:       "GROQ_API_KEY",
	llm.ProviderSambaNova:  "SAMBANOVA_API_KEY",
	llm.ProviderDeepSeek:   "DEEPSEEK_API_KEY",
	llm.ProviderOpenRouter: "OPENROUTER_API_KEY",
	llm.ProviderAnthropic:  "ANTHROPIC_API_KEY",
}

// Validate rejects unknown provider names. Called at startup, not call time.
func Validate(name string) error {
	if lo.Contains(llm.KnownProviders, name) {
		return nil
	}
	return llm.NewConfigError(fmt.Sprintf(
		"unknown provider %q (available: %s)", name, strings.Join(llm.KnownProviders, ", ")))
}

// credential returns the configured API key for a provider.
func credential(cfg *config.Config, name string) string {
	switch name {
	case llm.ProviderGemini:
		return cfg.Gemini.APIKey
	case llm.ProviderGroq:
		return cfg.Groq.APIKey
	case llm.ProviderSambaNova:
		return cfg.SambaNova.APIKey
	case llm.ProviderDeepSeek:
		return cfg.DeepSeek.APIKey
	case llm.ProviderOpenRouter:
		return cfg.OpenRouter.APIKey
	case llm.ProviderAnthropic:
		return cfg.Anthropic.APIKey
	default:
		return ""
	}
}

// Available returns the providers with credentials configured, in the default
// fallback order.
func Available(cfg *config.Config) []string {
	return lo.Filter(DefaultFallbackOrder, func(name string, _ int) bool {
		return credential(cfg, name) != ""
	})
}

// newClient constructs the adapter for one provider. The caller has already
// verified the credential is present.
func newClient(cfg *config.Config, name string, logger zerolog.Logger) (llm.Client, error) {
	switch name {
	case llm.ProviderGemini:
		gc, err := gemini.New(cfg.Gemini.APIKey, logger)
		if err != nil {
			return nil, err
		}
		return llm.NewModelLadder(gc, cfg.Gemini.Model, cfg.Gemini.Models, llm.DefaultBaseDelay, logger), nil

	case llm.ProviderAnthropic:
		ac, err := anthropic.New(cfg.Anthropic.APIKey, cfg.Anthropic.Model, logger)
		if err != nil {
			return nil, err
		}
		return llm.WithRetry(ac, llm.NewRetrier(llm.DefaultMaxRetries, llm.DefaultBaseDelay, logger)), nil

	case llm.ProviderGroq, llm.ProviderSambaNova, llm.ProviderDeepSeek, llm.ProviderOpenRouter:
		var pc config.ProviderConfig
		switch name {
		case llm.ProviderGroq:
			pc = cfg.Groq
		case llm.ProviderSambaNova:
			pc = cfg.SambaNova
		case llm.ProviderDeepSeek:
			pc = cfg.DeepSeek
		case llm.ProviderOpenRouter:
			pc = cfg.OpenRouter
		}
		oc, err := openaicompat.New(name, pc.APIKey, pc.Model, logger)
		if err != nil {
			return nil, err
		}
		return llm.WithRetry(oc, llm.NewRetrier(llm.DefaultMaxRetries, llm.DefaultBaseDelay, logger)), nil

	default:
		return nil, Validate(name)
	}
}

// buildChain instantiates an adapter for each provider in order, skipping
// providers without credentials. Fails only when zero providers remain, with
// an error enumerating which variable would enable which provider.
func buildChain(cfg *config.Config, order []string, logger zerolog.Logger) (*llm.FallbackChain, error) {
	var entries []llm.ChainEntry
	for _, name := range order {
		if credential(cfg, name) == "" {
			logger.Debug().Str("provider", name).Msg("Provider skipped: no credential")
			continue
		}
		client, err := newClient(cfg, name, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		entries = append(entries, llm.ChainEntry{Name: name, Client: client})
	}

	if len(entries) == 0 {
		return nil, llm.NewConfigError("no LLM providers available; " + credentialHelp())
	}

	chain, err := llm.NewFallbackChain(entries, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("providers", chain.Providers()).Msg("Fallback chain ready")
	return chain, nil
}

// Build creates the default chain. The primary provider always comes first;
// the remaining providers keep the default fallback order.
func Build(cfg *config.Config, primary string, logger zerolog.Logger) (*llm.FallbackChain, error) {
	if primary == "" {
		primary = cfg.Provider
	}
	if err := Validate(primary); err != nil {
		return nil, err
	}
	order := append([]string{primary},
		lo.Filter(DefaultFallbackOrder, func(name string, _ int) bool { return name != primary })...)
	return buildChain(cfg, order, logger)
}

// BuildWriting creates the quality-critical writing chain.
func BuildWriting(cfg *config.Config, logger zerolog.Logger) (*llm.FallbackChain, error) {
	return buildChain(cfg, WritingPriorityOrder, logger)
}

func credentialHelp() string {
	parts := lo.MapToSlice(CredentialVars, func(provider, envVar string) string {
		return fmt.Sprintf("set %s for %s", envVar, provider)
	})
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
