// Package assistant composes budgeting, failover, and step execution
// into the buffered and streaming entry points callers talk to.
package assistant

import (
	"context"
	"fmt"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/agent/budget"
	"github.com/perchbot/perch/internal/agent/runner"
	"github.com/perchbot/perch/internal/agent/tools"
	"github.com/perchbot/perch/internal/config"
)

// ErrPromptTooLarge is the only error the assistant synthesizes itself;
// everything else passes through from the provider verbatim.
var ErrPromptTooLarge = fmt.Errorf("request too large: the message does not fit the model's context even with history dropped; shorten the message or detach some tools")

// UsageRecorder receives one usage event per successful call. The db
// store satisfies this.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, model string, inputTokens, outputTokens int) error
}

// Request is one user exchange: the new message plus read-only context.
type Request struct {
	Message     string
	History     []ai.Turn
	Attachments []ai.Attachment
}

// Result is what a completed exchange hands back to the caller.
type Result struct {
	Text      string
	UsedTools bool
	Usage     ai.Usage
	// SwitchedTo names the fallback that served the request; nil means
	// the primary did.
	SwitchedTo *config.ProviderConfig
}

// Assistant is safe for concurrent use: every field is set at
// construction and read-only afterward, and each call builds its own
// message list.
type Assistant struct {
	system   string
	builder  *budget.Builder
	coord    *runner.Coordinator
	registry *tools.Registry
	usage    UsageRecorder
}

// New wires an assistant over an ordered candidate list. usage may be
// nil when the caller does not track token spend.
func New(cfg *config.Config, candidates []runner.Candidate, registry *tools.Registry, usage UsageRecorder) *Assistant {
	step := runner.NewStepExecutor(registry, cfg.Agent.MaxRounds)
	return &Assistant{
		system:   cfg.SystemPrompt,
		builder:  budget.NewBuilder(cfg.Budget.ContextTokens, cfg.Budget.ResponseReserve, cfg.Budget.HistoryCharCap),
		coord:    runner.NewCoordinator(candidates, step),
		registry: registry,
		usage:    usage,
	}
}

// Process runs one buffered exchange.
func (a *Assistant) Process(ctx context.Context, req *Request) (*Result, error) {
	return a.ProcessStream(ctx, req, nil)
}

// ProcessStream runs one exchange, relaying text deltas to onDelta as
// they arrive. onDelta may be nil.
func (a *Assistant) ProcessStream(ctx context.Context, req *Request, onDelta func(string)) (*Result, error) {
	toolDefs := a.registry.List()

	messages := a.builder.Build(a.system, toolDefs, req.Message, req.History, req.Attachments)
	out, failedAt, err := a.coord.Attempt(ctx, a.system, messages, toolDefs, onDelta)

	if err != nil && failedAt == 0 && ai.Classify(err) == ai.ClassPromptTooLong {
		// One recovery attempt: drop all prior history so the list
		// carries only the current user turn, then walk the same
		// candidates again. Only a primary overflow triggers this; a
		// fallback overflowing after the primary was retried surfaces
		// as-is.
		fmt.Printf("[Assistant] prompt too long (%v), retrying without history\n", err)
		messages = a.builder.Build(a.system, toolDefs, req.Message, nil, req.Attachments)
		out, _, err = a.coord.Attempt(ctx, a.system, messages, toolDefs, onDelta)
		if err != nil && ai.Classify(err) == ai.ClassPromptTooLong {
			return nil, ErrPromptTooLarge
		}
	}
	if err != nil {
		return nil, err
	}

	a.recordUsage(ctx, out)

	return &Result{
		Text:       out.Text,
		UsedTools:  out.UsedTools,
		Usage:      out.Usage,
		SwitchedTo: out.SwitchedTo,
	}, nil
}

func (a *Assistant) recordUsage(ctx context.Context, out *runner.Outcome) {
	if a.usage == nil {
		return
	}
	if err := a.usage.RecordUsage(ctx, out.Served.Config.Model, out.Usage.InputTokens, out.Usage.OutputTokens); err != nil {
		fmt.Printf("[Assistant] failed to record usage for %s: %v\n", out.Served.Config.Model, err)
	}
}
