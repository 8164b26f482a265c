package ai

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassFatal},
		{"prompt too long", errors.New("prompt is too long: 210000 tokens > 200000 maximum"), ClassPromptTooLong},
		{"context length code", &ProviderError{Code: "context_length_exceeded", Message: "request too big"}, ClassPromptTooLong},
		{"max context phrase", errors.New("This model's maximum context length is 128000 tokens"), ClassPromptTooLong},
		{"case insensitive", errors.New("Request Too Large for this model"), ClassPromptTooLong},
		{"rate limit", errors.New("429: rate limit exceeded, retry after 30s"), ClassRetriable},
		{"quota", errors.New("you have exhausted your quota"), ClassRetriable},
		{"overloaded", errors.New("overloaded_error: Anthropic API is temporarily overloaded"), ClassRetriable},
		{"unauthorized", errors.New("401 Unauthorized: invalid x-api-key"), ClassRetriable},
		{"forbidden", errors.New("HTTP 403 Forbidden"), ClassRetriable},
		{"server error", errors.New("502 Bad Gateway"), ClassRetriable},
		{"timeout", errors.New("context deadline exceeded"), ClassRetriable},
		{"connection reset", errors.New("read tcp 10.0.0.1:443: connection reset by peer"), ClassRetriable},
		{"wrapped retriable", fmt.Errorf("stream anthropic: %w", errors.New("503 Service Unavailable")), ClassRetriable},
		{"malformed request", errors.New("invalid_request_error: messages: roles must alternate"), ClassFatal},
		{"programming error", errors.New("nil pointer dereference"), ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorClassString(t *testing.T) {
	if ClassRetriable.String() != "retriable" {
		t.Errorf("ClassRetriable.String() = %q", ClassRetriable.String())
	}
	if ClassPromptTooLong.String() != "prompt_too_long" {
		t.Errorf("ClassPromptTooLong.String() = %q", ClassPromptTooLong.String())
	}
	if ClassFatal.String() != "fatal" {
		t.Errorf("ClassFatal.String() = %q", ClassFatal.String())
	}
}
