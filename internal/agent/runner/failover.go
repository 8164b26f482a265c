package runner

import (
	"context"
	"fmt"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/config"
)

// Candidate binds a resolved provider handle to the config it was
// built from. Resolution happens once at assistant construction;
// the hot path never re-checks provider identity.
type Candidate struct {
	Config   config.ProviderConfig
	Provider ai.Provider
}

// Label identifies the candidate in logs and results.
func (c Candidate) Label() string {
	return c.Config.Name + "/" + c.Config.Model
}

// Outcome is a successful attempt's result plus which candidate served it.
type Outcome struct {
	Text      string
	UsedTools bool
	Usage     ai.Usage
	Served    Candidate
	// SwitchedTo is set only when a fallback, not the primary, served
	// the request.
	SwitchedTo *config.ProviderConfig
}

// Coordinator tries candidates strictly in order: primary first, then
// each fallback. A retriable failure moves on to the next candidate; a
// fatal one propagates immediately. Candidates are never raced in
// parallel and never tried twice within one call.
type Coordinator struct {
	Candidates []Candidate
	Step       *StepExecutor
}

// NewCoordinator creates a coordinator over an ordered candidate list.
func NewCoordinator(candidates []Candidate, step *StepExecutor) *Coordinator {
	return &Coordinator{Candidates: candidates, Step: step}
}

// Attempt runs the exchange against successive candidates until one
// succeeds. PromptTooLong errors propagate for the caller to recover
// via history truncation. On failure the returned index names which
// candidate produced the propagated error.
func (c *Coordinator) Attempt(ctx context.Context, system string, messages []ai.Message, toolDefs []ai.ToolDefinition, onDelta func(string)) (*Outcome, int, error) {
	if len(c.Candidates) == 0 {
		return nil, -1, fmt.Errorf("no providers configured")
	}

	for i, cand := range c.Candidates {
		res, err := c.Step.RunStream(ctx, cand.Provider, system, messages, toolDefs, onDelta)
		if err == nil {
			out := &Outcome{
				Text:      res.Text,
				UsedTools: res.UsedTools,
				Usage:     res.Usage,
				Served:    cand,
			}
			if i > 0 {
				cfg := cand.Config
				out.SwitchedTo = &cfg
			}
			return out, i, nil
		}

		switch ai.Classify(err) {
		case ai.ClassRetriable:
			if i == len(c.Candidates)-1 {
				return nil, i, err
			}
			fmt.Printf("[Failover] %s failed (%v), trying %s\n",
				cand.Label(), err, c.Candidates[i+1].Label())
		default:
			// Fatal and PromptTooLong both stop the attempt walk;
			// PromptTooLong is recovered one level up.
			return nil, i, err
		}
	}

	// Unreachable: the last candidate either returned or propagated.
	return nil, -1, fmt.Errorf("no providers available")
}
