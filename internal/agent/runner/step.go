// Package runner drives multi-round tool-calling exchanges with a
// model provider and fails over across configured providers.
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/agent/tools"
)

// DefaultMaxRounds caps the tool-calling loop per attempt.
const DefaultMaxRounds = 10

// ToolRunner executes tool calls issued by the model. *tools.Registry
// implements it.
type ToolRunner interface {
	Execute(ctx context.Context, call *ai.ToolCall) *tools.ToolResult
}

// StepResult is the outcome of one full exchange against one provider.
type StepResult struct {
	Text      string
	UsedTools bool
	Usage     ai.Usage
}

// StepExecutor runs one end-to-end exchange: up to MaxRounds rounds of
// "model emits text and/or tool calls, tools execute, results feed
// back", aggregating text and usage along the way.
type StepExecutor struct {
	Tools     ToolRunner
	MaxRounds int
}

// NewStepExecutor creates a step executor with the given round cap.
// rounds <= 0 means DefaultMaxRounds.
func NewStepExecutor(toolRunner ToolRunner, rounds int) *StepExecutor {
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}
	return &StepExecutor{Tools: toolRunner, MaxRounds: rounds}
}

// Run executes the exchange buffered, returning only the final result.
func (e *StepExecutor) Run(ctx context.Context, provider ai.Provider, system string, messages []ai.Message, toolDefs []ai.ToolDefinition) (*StepResult, error) {
	return e.RunStream(ctx, provider, system, messages, toolDefs, nil)
}

// RunStream executes the exchange and forwards every non-empty text
// fragment to onDelta synchronously, in generation order. onDelta may
// be nil.
//
// The lowest-level generation error is captured and re-raised verbatim
// when the aggregate text comes out empty; a raw provider rejection is
// never masked by a generic "no output" error.
func (e *StepExecutor) RunStream(ctx context.Context, provider ai.Provider, system string, messages []ai.Message, toolDefs []ai.ToolDefinition, onDelta func(string)) (*StepResult, error) {
	maxRounds := e.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	// Working copy: rounds append assistant and tool messages locally,
	// the caller's slice is never mutated.
	working := make([]ai.Message, len(messages))
	copy(working, messages)

	result := &StepResult{}
	var roundTexts []string
	var terminalText string
	var captured error

rounds:
	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			captured = err
			break
		}

		events, err := provider.Stream(ctx, &ai.ChatRequest{
			Messages: working,
			Tools:    toolDefs,
			System:   system,
		})
		if err != nil {
			captured = err
			break
		}

		var roundText strings.Builder
		var toolCalls []ai.ToolCall

		for event := range events {
			switch event.Type {
			case ai.EventTypeText:
				if event.Text != "" {
					roundText.WriteString(event.Text)
					if onDelta != nil {
						onDelta(event.Text)
					}
				}

			case ai.EventTypeToolCall:
				toolCalls = append(toolCalls, *event.ToolCall)

			case ai.EventTypeError:
				fmt.Printf("[Step] Generation error in round %d: %v\n", round+1, event.Error)
				captured = event.Error
				// Drain remaining events so the provider goroutine
				// can finish, then stop.
				for range events {
				}
				break rounds

			case ai.EventTypeDone:
				if event.Usage != nil {
					result.Usage.Add(*event.Usage)
				}
			}
		}

		terminalText = roundText.String()
		if terminalText != "" {
			roundTexts = append(roundTexts, terminalText)
		}

		if len(toolCalls) == 0 {
			// Final answer, no more rounds.
			break
		}

		result.UsedTools = true

		working = append(working, ai.Message{
			Role:      "assistant",
			Content:   terminalText,
			ToolCalls: toolCalls,
		})

		toolResults := make([]ai.ToolResult, 0, len(toolCalls))
		for i := range toolCalls {
			tc := &toolCalls[i]
			res := e.Tools.Execute(ctx, tc)
			toolResults = append(toolResults, ai.ToolResult{
				ToolCallID: tc.ID,
				Content:    res.Content,
				IsError:    res.IsError,
			})
		}
		working = append(working, ai.Message{
			Role:        "tool",
			ToolResults: toolResults,
		})

		// A round that issued tool calls has no terminal answer yet.
		terminalText = ""
	}

	// The terminal answer wins when present; otherwise fall back to
	// the per-round partials (the model may have produced prose in
	// earlier rounds even if the last one came out empty).
	if terminalText != "" {
		result.Text = terminalText
	} else {
		result.Text = strings.Join(roundTexts, "\n\n")
	}

	if result.Text == "" {
		if captured != nil {
			return nil, captured
		}
		// Empty success: no text, no error. Possibly a deliberate
		// no-op turn; keep it but make it visible for follow-up.
		fmt.Printf("[Step] empty result from %s with no captured error\n", provider.ID())
	}

	return result, nil
}
