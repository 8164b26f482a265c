package ai

import (
	"context"
	"encoding/json"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText       StreamEventType = "text"
	EventTypeToolCall   StreamEventType = "tool_call"
	EventTypeToolResult StreamEventType = "tool_result"
	EventTypeError      StreamEventType = "error"
	EventTypeDone       StreamEventType = "done"
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Error    error           `json:"error,omitempty"`
	// Usage is set on the done event when the provider reports it.
	Usage *Usage `json:"usage,omitempty"`
}

// ToolCall represents a tool invocation from the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult carries the outcome of a tool execution back to the model
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool available to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Usage counts tokens consumed by a model call
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage count into u
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// PartKind identifies a typed message part
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// Part is one piece of a multimodal message
type Part struct {
	Kind      PartKind `json:"kind"`
	Text      string   `json:"text,omitempty"`
	Data      []byte   `json:"data,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	FileName  string   `json:"file_name,omitempty"`
}

// Message is one entry in a model conversation. Content holds plain
// text; Parts is set instead when the message is multimodal.
// Assistant messages may carry ToolCalls; tool messages carry
// ToolResults answering them.
type Message struct {
	Role        string       `json:"role"` // user, assistant, tool
	Content     string       `json:"content,omitempty"`
	Parts       []Part       `json:"parts,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// Attachment is binary content supplied with the current user turn
type Attachment struct {
	Kind      PartKind `json:"kind"` // image or file
	Data      []byte   `json:"data"`
	MediaType string   `json:"media_type,omitempty"`
	FileName  string   `json:"file_name,omitempty"`
}

// Turn is one prior exchange entry as loaded from history
type Turn struct {
	Role           string `json:"role"` // user or assistant
	Text           string `json:"text"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// ChatRequest represents a request to the model provider
type ChatRequest struct {
	Messages  []Message        `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	System    string           `json:"system,omitempty"`
	Model     string           `json:"model,omitempty"`
}

// Provider interface for model providers
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Stream sends a request and returns a channel of streaming events
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// ProviderError represents an error from a provider
type ProviderError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func (e *ProviderError) Error() string {
	return e.Message
}
