package budget

import (
	"fmt"
	"strings"

	"github.com/perchbot/perch/internal/agent/ai"
)

// Defaults for the builder knobs.
const (
	DefaultContextTokens   = 200000
	DefaultResponseReserve = 8000
	DefaultHistoryCharCap  = 1000
)

// Builder assembles an ordered message list that fits inside the
// context-token ceiling: fixed overhead + current turn + as much
// trailing history as fits. It cannot fail; when the budget is tight
// it degrades by dropping history.
type Builder struct {
	// ContextTokens is the model's context window estimate.
	ContextTokens int
	// ResponseReserve is held back for the model's reply.
	ResponseReserve int
	// HistoryCharCap truncates each history turn's text.
	HistoryCharCap int
}

// NewBuilder returns a Builder with the given ceiling and default
// reserve and truncation settings. Non-positive values fall back to
// defaults.
func NewBuilder(contextTokens, responseReserve, historyCharCap int) *Builder {
	b := &Builder{
		ContextTokens:   contextTokens,
		ResponseReserve: responseReserve,
		HistoryCharCap:  historyCharCap,
	}
	if b.ContextTokens <= 0 {
		b.ContextTokens = DefaultContextTokens
	}
	if b.ResponseReserve <= 0 {
		b.ResponseReserve = DefaultResponseReserve
	}
	if b.HistoryCharCap <= 0 {
		b.HistoryCharCap = DefaultHistoryCharCap
	}
	return b
}

// Build produces the conversation payload for one request. History is
// supplied oldest-first; the returned list is chronological with the
// current user turn last.
func (b *Builder) Build(systemPrompt string, tools []ai.ToolDefinition, userMessage string, history []ai.Turn, attachments []ai.Attachment) []ai.Message {
	fixed := EstimateTokens(systemPrompt) +
		EstimateTokens(toolNameList(tools)) +
		len(tools)*perToolTokens +
		b.ResponseReserve

	current := EstimateTokens(userMessage)
	for _, att := range attachments {
		switch att.Kind {
		case ai.PartImage:
			current += imageTokens
		default:
			current += EstimateBytes(len(att.Data))
		}
	}

	remaining := b.ContextTokens - fixed - current

	// Walk newest-to-oldest. The first turn that doesn't fit ends the
	// walk: older turns are never considered once one is skipped.
	var selected []ai.Turn
	for i := len(history) - 1; i >= 0 && remaining > 0; i-- {
		turn := history[i]
		rendered := b.renderTurn(turn)
		cost := EstimateTokens(rendered)
		if cost > remaining {
			break
		}
		turn.Text = rendered
		selected = append(selected, turn)
		remaining -= cost
	}

	messages := make([]ai.Message, 0, len(selected)+1)
	// selected is newest-first; emit oldest-first.
	for i := len(selected) - 1; i >= 0; i-- {
		messages = append(messages, ai.Message{
			Role:    selected[i].Role,
			Content: selected[i].Text,
		})
	}

	messages = append(messages, currentTurn(userMessage, attachments))
	return messages
}

// renderTurn truncates a history turn's text and prefixes an
// attachment-presence marker when the original turn carried one.
func (b *Builder) renderTurn(turn ai.Turn) string {
	text := turn.Text
	if len(text) > b.HistoryCharCap {
		text = text[:b.HistoryCharCap]
	}
	if turn.AttachmentName != "" {
		return fmt.Sprintf("[attachment: %s] %s", turn.AttachmentName, text)
	}
	return text
}

// currentTurn encodes the user's message, as typed parts when
// attachments are present, plain text otherwise.
func currentTurn(userMessage string, attachments []ai.Attachment) ai.Message {
	if len(attachments) == 0 {
		return ai.Message{Role: "user", Content: userMessage}
	}

	parts := make([]ai.Part, 0, len(attachments)+1)
	for _, att := range attachments {
		kind := att.Kind
		if kind != ai.PartImage {
			kind = ai.PartFile
		}
		parts = append(parts, ai.Part{
			Kind:      kind,
			Data:      att.Data,
			MediaType: att.MediaType,
			FileName:  att.FileName,
		})
	}
	parts = append(parts, ai.Part{Kind: ai.PartText, Text: userMessage})
	return ai.Message{Role: "user", Parts: parts}
}

func toolNameList(tools []ai.ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
