package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool // worth retrying on the same model
	Escalate    bool // quota-like: the caller may move to another model/provider
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeRateLimit is a short-lived throttle (HTTP 429 or equivalent).
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeDailyQuota is a per-day allotment exhaustion. Unlike a rate
	// limit it will not clear within a retry budget, so it skips straight to
	// the next model or provider.
	ErrorTypeDailyQuota ErrorType = "daily_quota"
	// ErrorTypeExhausted means a retry budget ran out on a quota-like error.
	// Still escalatable; only fatal once every model of every provider is gone.
	ErrorTypeExhausted       ErrorType = "exhausted"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeInvalidResponse ErrorType = "invalid_response"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeConfig          ErrorType = "config"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRateLimitError checks if an error is a short-lived rate limit.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsDailyQuotaError checks if an error is a per-day quota exhaustion.
func IsDailyQuotaError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeDailyQuota
	}
	return false
}

// IsRetryableError checks if an error is worth retrying on the same model.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ShouldEscalate reports whether the caller may recover by moving to the next
// model or provider. Only quota-like errors escalate; everything else is
// presumed to be a caller or integration bug that would recur elsewhere.
func ShouldEscalate(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Escalate
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		Escalate:    true,
		RetryAfter:  retryAfter,
		StatusCode:  http.StatusTooManyRequests,
		ProviderErr: providerErr,
	}
}

// NewDailyQuotaError creates a per-day quota exhaustion error.
func NewDailyQuotaError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeDailyQuota,
		Message:     message,
		Retryable:   false,
		Escalate:    true,
		StatusCode:  http.StatusTooManyRequests,
		ProviderErr: providerErr,
	}
}

// NewExhaustedError creates an error signaling a spent retry budget that may
// still be recovered by escalating to another model or provider.
func NewExhaustedError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeExhausted,
		Message:     message,
		Retryable:   false,
		Escalate:    true,
		ProviderErr: providerErr,
	}
}

// NewNetworkError creates a transient network error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewTimeoutError creates a transient timeout error.
func NewTimeoutError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeTimeout,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewInvalidRequestError creates a fatal bad-request error.
func NewInvalidRequestError(message string, statusCode int, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeInvalidRequest,
		Message:     message,
		Retryable:   false,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}

// NewInvalidResponseError creates a fatal malformed-response error. Never
// retried: a payload the adapter cannot read points at an integration bug,
// and retrying it only burns quota.
func NewInvalidResponseError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeInvalidResponse,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a provider-side error. Server errors (5xx) are
// retryable; pass retryable accordingly.
func NewProviderError(message string, statusCode int, retryable bool, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   retryable,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}

// NewConfigError creates a fatal configuration error. The message must tell
// the user how to fix it.
func NewConfigError(message string) *Error {
	return &Error{
		Type:      ErrorTypeConfig,
		Message:   message,
		Retryable: false,
	}
}

var retryHintPatterns = []*regexp.Regexp{
	// "retry in 12.5 seconds", "Please retry after 30s"
	regexp.MustCompile(`(?i)retry\s+(?:in|after)\s+([0-9]+(?:\.[0-9]+)?)\s*s`),
	// Google RetryInfo detail: "retryDelay": "12s"
	regexp.MustCompile(`(?i)"retryDelay"\s*:\s*"([0-9]+(?:\.[0-9]+)?)s"`),
	// Bare Retry-After header value forwarded into a message: "retry-after: 42"
	regexp.MustCompile(`(?i)retry-after:\s*([0-9]+(?:\.[0-9]+)?)`),
}

// ParseRetryHint scans provider error text for an explicit "retry after N
// seconds" hint and returns it as a duration. Returns nil when no hint is
// present.
func ParseRetryHint(text string) *time.Duration {
	for _, pattern := range retryHintPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		seconds, err := strconv.ParseFloat(m[1], 64)
		if err != nil || seconds < 0 {
			continue
		}
		d := time.Duration(seconds * float64(time.Second))
		return &d
	}
	return nil
}

// 429 bodies that report a *daily* allotment, as opposed to a per-minute
// throttle, contain one of these markers across the providers we talk to.
var dailyQuotaMarkers = []string{
	"PerDay",
	"per day",
	"daily",
	"RPD",
	"TPD",
}

// LooksLikeDailyQuota reports whether a 429 payload describes a per-day quota
// exhaustion. Adapters call this once while classifying the provider payload;
// downstream escalation logic only ever inspects the structured Type field.
func LooksLikeDailyQuota(body string) bool {
	lowered := strings.ToLower(body)
	for _, marker := range dailyQuotaMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// ErrNoProviders is returned when chain construction finds zero usable
// providers.
var ErrNoProviders = fmt.Errorf("no LLM providers configured")
