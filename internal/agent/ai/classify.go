package ai

import "strings"

// ErrorClass categorizes a provider error for the failover logic.
type ErrorClass int

const (
	// ClassFatal errors are propagated immediately, never retried.
	ClassFatal ErrorClass = iota
	// ClassRetriable errors are worth failing over to the next provider.
	ClassRetriable
	// ClassPromptTooLong means the request exceeded the model's context
	// window; recovered by truncating history and retrying once.
	ClassPromptTooLong
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRetriable:
		return "retriable"
	case ClassPromptTooLong:
		return "prompt_too_long"
	default:
		return "fatal"
	}
}

// Pattern matching on error text is fragile but it is all most provider
// APIs give us. Keep every rule here so a structured error-code scheme
// can replace this in one place.

var promptTooLongPatterns = []string{
	"prompt is too long",
	"too long",
	"too large",
	"exceeds the limit",
	"exceeds the maximum",
	"max context length",
	"maximum context length",
	"maximum tokens",
	"context_length_exceeded",
}

var retriablePatterns = []string{
	// rate limiting
	"429", "rate limit", "rate_limit", "quota", "resource exhausted",
	"too many requests",
	// authorization trouble: a fallback with different credentials may
	// still serve the request
	"401", "403", "unauthorized", "forbidden",
	// server-side failure
	"500", "502", "503", "504", "529", "overloaded",
	"internal server error", "service unavailable",
	// network failure
	"timeout", "timed out", "deadline exceeded",
	"connection reset", "connection refused", "broken pipe",
}

// Classify buckets an error as PromptTooLong, Retriable, or Fatal by
// case-insensitive matching on its message.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}

	if pe, ok := err.(*ProviderError); ok {
		switch pe.Code {
		case "context_length_exceeded":
			return ClassPromptTooLong
		case "rate_limit_exceeded", "overloaded_error":
			return ClassRetriable
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range promptTooLongPatterns {
		if strings.Contains(msg, p) {
			return ClassPromptTooLong
		}
	}
	for _, p := range retriablePatterns {
		if strings.Contains(msg, p) {
			return ClassRetriable
		}
	}
	return ClassFatal
}
