package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
)

// ErrorClass buckets provider failures for the orchestrator's fallback
// decision. Anything outside these two classes propagates unchanged.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassQuotaExceeded
	ClassUnavailable
)

// Recognized signals, centrally defined. The Gemini API surfaces its HTTP
// status inside the error message; OpenAI-compatible clients expose a typed
// status code.
var (
	quotaSubstrings = []string{
		"429",
		"quota",
		"resource_exhausted",
		"rate limit",
	}
	unavailableSubstrings = []string{
		"503",
		"unavailable",
		"overloaded",
		"deadline exceeded waiting for server",
	}
)

// Classify inspects an error for quota-exceeded or service-unavailable
// signals. Context cancellation is never classified: a cancelled call must not
// trigger fallback.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassNone
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return ClassQuotaExceeded
		case 500, 502, 503, 504:
			return ClassUnavailable
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range quotaSubstrings {
		if strings.Contains(msg, s) {
			return ClassQuotaExceeded
		}
	}
	for _, s := range unavailableSubstrings {
		if strings.Contains(msg, s) {
			return ClassUnavailable
		}
	}
	return ClassNone
}

// IsFallbackTrigger reports whether the orchestrator may retry the call once
// against the designated fallback model.
func IsFallbackTrigger(err error) bool {
	switch Classify(err) {
	case ClassQuotaExceeded, ClassUnavailable:
		return true
	default:
		return false
	}
}
