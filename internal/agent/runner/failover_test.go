package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/config"
)

func candidateFor(name, model string, p *scriptedProvider) Candidate {
	return Candidate{
		Config:   config.ProviderConfig{Name: name, Model: model},
		Provider: p,
	}
}

func TestFailoverPrimaryServes(t *testing.T) {
	primary := &scriptedProvider{id: "anthropic", rounds: []scriptedRound{
		{texts: []string{"from primary"}, usage: &ai.Usage{InputTokens: 9, OutputTokens: 2}},
	}}
	fallback := &scriptedProvider{id: "openai"}

	coord := NewCoordinator([]Candidate{
		candidateFor("anthropic", "claude-sonnet-4-20250514", primary),
		candidateFor("openai", "gpt-4o", fallback),
	}, NewStepExecutor(&recordingToolRunner{}, 0))

	out, _, err := coord.Attempt(context.Background(), "", []ai.Message{{Role: "user", Content: "hi"}}, nil, nil)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if out.Text != "from primary" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.SwitchedTo != nil {
		t.Errorf("SwitchedTo = %+v, want nil when primary serves", out.SwitchedTo)
	}
	if out.Served.Config.Name != "anthropic" {
		t.Errorf("Served = %s", out.Served.Label())
	}
	if fallback.calls != 0 {
		t.Error("fallback invoked despite primary success")
	}
}

func TestFailoverRetriableMovesToNext(t *testing.T) {
	primary := &scriptedProvider{id: "anthropic", streamErr: errors.New("429 Too Many Requests")}
	second := &scriptedProvider{id: "openai", rounds: []scriptedRound{
		{texts: []string{"from fallback"}},
	}}
	third := &scriptedProvider{id: "ollama"}

	coord := NewCoordinator([]Candidate{
		candidateFor("anthropic", "claude-sonnet-4-20250514", primary),
		candidateFor("openai", "gpt-4o", second),
		candidateFor("ollama", "llama3.2", third),
	}, NewStepExecutor(&recordingToolRunner{}, 0))

	out, _, err := coord.Attempt(context.Background(), "", []ai.Message{{Role: "user", Content: "hi"}}, nil, nil)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if out.Text != "from fallback" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.SwitchedTo == nil || out.SwitchedTo.Name != "openai" {
		t.Errorf("SwitchedTo = %+v, want openai", out.SwitchedTo)
	}
	if third.calls != 0 {
		t.Error("third candidate invoked after second succeeded")
	}
}

func TestFailoverFatalStopsImmediately(t *testing.T) {
	fatalErr := errors.New("invalid_request_error: messages must not be empty")
	primary := &scriptedProvider{id: "anthropic", streamErr: fatalErr}
	fallback := &scriptedProvider{id: "openai", rounds: []scriptedRound{
		{texts: []string{"should never run"}},
	}}

	coord := NewCoordinator([]Candidate{
		candidateFor("anthropic", "claude-sonnet-4-20250514", primary),
		candidateFor("openai", "gpt-4o", fallback),
	}, NewStepExecutor(&recordingToolRunner{}, 0))

	_, _, err := coord.Attempt(context.Background(), "", []ai.Message{{Role: "user", Content: "hi"}}, nil, nil)
	if !errors.Is(err, fatalErr) {
		t.Fatalf("err = %v, want the fatal error verbatim", err)
	}
	if fallback.calls != 0 {
		t.Error("fallback invoked on a fatal error")
	}
}

func TestFailoverPromptTooLongPropagates(t *testing.T) {
	ptl := &ai.ProviderError{Code: "context_length_exceeded", Message: "prompt is too long"}
	primary := &scriptedProvider{id: "anthropic", streamErr: ptl}
	fallback := &scriptedProvider{id: "openai"}

	coord := NewCoordinator([]Candidate{
		candidateFor("anthropic", "claude-sonnet-4-20250514", primary),
		candidateFor("openai", "gpt-4o", fallback),
	}, NewStepExecutor(&recordingToolRunner{}, 0))

	_, _, err := coord.Attempt(context.Background(), "", []ai.Message{{Role: "user", Content: "hi"}}, nil, nil)
	if ai.Classify(err) != ai.ClassPromptTooLong {
		t.Fatalf("err = %v, want prompt-too-long to propagate for the caller", err)
	}
	if fallback.calls != 0 {
		t.Error("fallback invoked on prompt-too-long; truncation is the caller's move")
	}
}

func TestFailoverLastRetriablePropagates(t *testing.T) {
	firstErr := errors.New("503 Service Unavailable")
	lastErr := errors.New("429 rate_limit_error")
	primary := &scriptedProvider{id: "anthropic", streamErr: firstErr}
	fallback := &scriptedProvider{id: "openai", streamErr: lastErr}

	coord := NewCoordinator([]Candidate{
		candidateFor("anthropic", "claude-sonnet-4-20250514", primary),
		candidateFor("openai", "gpt-4o", fallback),
	}, NewStepExecutor(&recordingToolRunner{}, 0))

	_, _, err := coord.Attempt(context.Background(), "", []ai.Message{{Role: "user", Content: "hi"}}, nil, nil)
	if !errors.Is(err, lastErr) {
		t.Fatalf("err = %v, want the last candidate's error", err)
	}
}

func TestFailoverNoCandidates(t *testing.T) {
	coord := NewCoordinator(nil, NewStepExecutor(&recordingToolRunner{}, 0))
	_, _, err := coord.Attempt(context.Background(), "", nil, nil, nil)
	if err == nil {
		t.Fatal("want error for empty candidate list")
	}
}
