package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/agent/tools"
)

// scriptedRound describes what the fake provider emits for one Stream call.
type scriptedRound struct {
	texts     []string
	toolCalls []ai.ToolCall
	err       error // emitted as an error event after texts
	usage     *ai.Usage
}

// scriptedProvider plays back one scripted round per Stream call and
// records the requests it received.
type scriptedProvider struct {
	id        string
	rounds    []scriptedRound
	streamErr error // returned by Stream itself, before any events
	calls     int
	requests  []*ai.ChatRequest
}

func (p *scriptedProvider) ID() string { return p.id }

func (p *scriptedProvider) Stream(ctx context.Context, req *ai.ChatRequest) (<-chan ai.StreamEvent, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	p.requests = append(p.requests, req)
	if p.calls >= len(p.rounds) {
		p.calls++
		ch := make(chan ai.StreamEvent, 1)
		ch <- ai.StreamEvent{Type: ai.EventTypeDone}
		close(ch)
		return ch, nil
	}
	round := p.rounds[p.calls]
	p.calls++

	ch := make(chan ai.StreamEvent, len(round.texts)+len(round.toolCalls)+2)
	for _, txt := range round.texts {
		ch <- ai.StreamEvent{Type: ai.EventTypeText, Text: txt}
	}
	for i := range round.toolCalls {
		tc := round.toolCalls[i]
		ch <- ai.StreamEvent{Type: ai.EventTypeToolCall, ToolCall: &tc}
	}
	if round.err != nil {
		ch <- ai.StreamEvent{Type: ai.EventTypeError, Error: round.err}
	} else {
		ch <- ai.StreamEvent{Type: ai.EventTypeDone, Usage: round.usage}
	}
	close(ch)
	return ch, nil
}

// recordingToolRunner echoes tool calls and records them.
type recordingToolRunner struct {
	executed []string
}

func (r *recordingToolRunner) Execute(ctx context.Context, call *ai.ToolCall) *tools.ToolResult {
	r.executed = append(r.executed, call.Name)
	return &tools.ToolResult{Content: "result of " + call.Name}
}

func TestStepSingleRoundText(t *testing.T) {
	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{
		{texts: []string{"Hello, ", "world."}, usage: &ai.Usage{InputTokens: 12, OutputTokens: 5}},
	}}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	res, err := exec.Run(context.Background(), provider, "sys", []ai.Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "Hello, world." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.UsedTools {
		t.Error("UsedTools should be false")
	}
	if res.Usage.InputTokens != 12 || res.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", res.Usage)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestStepToolRoundThenAnswer(t *testing.T) {
	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{
		{
			texts:     []string{"Checking the time."},
			toolCalls: []ai.ToolCall{{ID: "c1", Name: "clock", Input: json.RawMessage(`{}`)}},
			usage:     &ai.Usage{InputTokens: 10, OutputTokens: 4},
		},
		{texts: []string{"It is noon."}, usage: &ai.Usage{InputTokens: 20, OutputTokens: 3}},
	}}
	toolRunner := &recordingToolRunner{}
	exec := NewStepExecutor(toolRunner, 0)

	res, err := exec.Run(context.Background(), provider, "", []ai.Message{{Role: "user", Content: "time?"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "It is noon." {
		t.Errorf("Text = %q, want terminal answer", res.Text)
	}
	if !res.UsedTools {
		t.Error("UsedTools should be true")
	}
	if len(toolRunner.executed) != 1 || toolRunner.executed[0] != "clock" {
		t.Errorf("executed tools = %v", toolRunner.executed)
	}
	if res.Usage.InputTokens != 30 || res.Usage.OutputTokens != 7 {
		t.Errorf("Usage not aggregated across rounds: %+v", res.Usage)
	}

	// Round 2 must see the assistant tool call and its result fed back.
	if len(provider.requests) != 2 {
		t.Fatalf("got %d requests", len(provider.requests))
	}
	msgs := provider.requests[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("round 2 got %d messages, want user+assistant+tool", len(msgs))
	}
	if msgs[1].Role != "assistant" || len(msgs[1].ToolCalls) != 1 {
		t.Errorf("assistant message not fed back: %+v", msgs[1])
	}
	if msgs[2].Role != "tool" || msgs[2].ToolResults[0].Content != "result of clock" {
		t.Errorf("tool result not fed back: %+v", msgs[2])
	}
}

func TestStepDoesNotMutateCallerMessages(t *testing.T) {
	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{
		{toolCalls: []ai.ToolCall{{ID: "c1", Name: "clock", Input: json.RawMessage(`{}`)}}},
		{texts: []string{"done"}},
	}}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	original := []ai.Message{{Role: "user", Content: "hi"}}
	if _, err := exec.Run(context.Background(), provider, "", original, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(original) != 1 {
		t.Errorf("caller slice grew to %d entries", len(original))
	}
}

func TestStepEmptyAggregateRaisesCapturedError(t *testing.T) {
	genErr := errors.New("invalid_request_error: something specific")
	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{
		{err: genErr},
	}}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	_, err := exec.Run(context.Background(), provider, "", []ai.Message{{Role: "user", Content: "hi"}}, nil)
	if !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want the captured generation error", err)
	}
}

func TestStepStreamConstructionErrorSurfaces(t *testing.T) {
	reqErr := errors.New("401 Unauthorized: invalid x-api-key")
	provider := &scriptedProvider{id: "fake", streamErr: reqErr}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	_, err := exec.Run(context.Background(), provider, "", nil, nil)
	if !errors.Is(err, reqErr) {
		t.Fatalf("err = %v, want the provider rejection verbatim", err)
	}
}

func TestStepPartialTextSurvivesLaterError(t *testing.T) {
	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{
		{
			texts:     []string{"Partial prose."},
			toolCalls: []ai.ToolCall{{ID: "c1", Name: "clock", Input: json.RawMessage(`{}`)}},
		},
		{err: errors.New("503 Service Unavailable")},
	}}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	res, err := exec.Run(context.Background(), provider, "", []ai.Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v (partial text should win over a later error)", err)
	}
	if res.Text != "Partial prose." {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestStepRoundCapAggregatesPartials(t *testing.T) {
	// Every round issues a tool call so the loop only ends at the cap.
	var rounds []scriptedRound
	for i := 0; i < 5; i++ {
		rounds = append(rounds, scriptedRound{
			texts:     []string{fmt.Sprintf("round %d", i+1)},
			toolCalls: []ai.ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "clock", Input: json.RawMessage(`{}`)}},
		})
	}
	provider := &scriptedProvider{id: "fake", rounds: rounds}
	exec := NewStepExecutor(&recordingToolRunner{}, 3)

	res, err := exec.Run(context.Background(), provider, "", []ai.Message{{Role: "user", Content: "go"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("provider called %d times, want the round cap 3", provider.calls)
	}
	want := "round 1\n\nround 2\n\nround 3"
	if res.Text != want {
		t.Errorf("Text = %q, want joined partials %q", res.Text, want)
	}
}

func TestStepEmptySuccessPreserved(t *testing.T) {
	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{{}}}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	res, err := exec.Run(context.Background(), provider, "", []ai.Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v (no text and no error is an empty success)", err)
	}
	if res.Text != "" || res.UsedTools {
		t.Errorf("res = %+v, want empty success", res)
	}
}

func TestStepStreamingMatchesBuffered(t *testing.T) {
	script := []scriptedRound{
		{texts: []string{"The answer ", "is ", "42."}},
	}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)
	msgs := []ai.Message{{Role: "user", Content: "meaning of life?"}}

	buffered, err := exec.Run(context.Background(), &scriptedProvider{id: "fake", rounds: script}, "", msgs, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var deltas strings.Builder
	streamed, err := exec.RunStream(context.Background(), &scriptedProvider{id: "fake", rounds: script}, "", msgs, nil, func(d string) {
		deltas.WriteString(d)
	})
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}

	if streamed.Text != buffered.Text {
		t.Errorf("streamed %q != buffered %q", streamed.Text, buffered.Text)
	}
	if deltas.String() != buffered.Text {
		t.Errorf("delta concat %q != buffered text %q", deltas.String(), buffered.Text)
	}
}

func TestStepCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{id: "fake", rounds: []scriptedRound{{texts: []string{"never"}}}}
	exec := NewStepExecutor(&recordingToolRunner{}, 0)

	_, err := exec.Run(ctx, provider, "", []ai.Message{{Role: "user", Content: "hi"}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider invoked despite cancelled context")
	}
}
