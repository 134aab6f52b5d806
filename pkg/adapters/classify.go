package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// Sentinel provider failures. Providers wrap these so classification does not
// depend on message wording.
var (
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrAuthNotConfigured = errors.New("auth not configured: api key missing")
	ErrModelUnavailable  = errors.New("model unavailable")
)

// ProviderError is a failure raised by a provider-specific invocation step.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify maps any provider failure onto the closed error taxonomy.
// Kind wins over message; unmatched failures are unknown_error.
func Classify(err error) contracts.ErrorCode {
	if err == nil {
		return contracts.ErrorUnknown
	}
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return contracts.ErrorQuotaExceeded
	case errors.Is(err, ErrAuthNotConfigured):
		return contracts.ErrorAuthNotConfigured
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, context.DeadlineExceeded):
		return contracts.ErrorModelUnavailable
	}

	msg := norm.NFKC.String(strings.ToLower(err.Error()))
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "429"):
		return contracts.ErrorQuotaExceeded
	case strings.Contains(msg, "auth") || strings.Contains(msg, "api key"):
		return contracts.ErrorAuthNotConfigured
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable"):
		return contracts.ErrorModelUnavailable
	}
	return contracts.ErrorUnknown
}

// errorForStatus turns a non-2xx provider HTTP status into a classified failure.
func errorForStatus(provider string, status int) error {
	var cause error
	switch {
	case status == 429:
		cause = ErrQuotaExceeded
	case status == 401 || status == 403:
		cause = ErrAuthNotConfigured
	case status == 502 || status == 503 || status == 504:
		cause = ErrModelUnavailable
	default:
		cause = errors.New("unexpected response")
	}
	return &ProviderError{Provider: provider, StatusCode: status, Err: cause}
}
