// Package tools holds the capability set the model may invoke
// mid-conversation: built-in tools plus proxies for remote MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/perchbot/perch/internal/agent/ai"
)

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a description for the model
	Description() string

	// Schema returns the JSON schema for the tool's input
	Schema() json.RawMessage

	// Execute runs the tool with the given input. Argument validation
	// is the tool's own responsibility.
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ChangeListener is called when tools are added or removed from the registry.
type ChangeListener func(added []string, removed []string)

// Registry manages available tools. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	listeners []ChangeListener
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// OnChange registers a listener that is called when tools are added or removed.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// notifyListeners calls all change listeners (must NOT hold lock).
func (r *Registry) notifyListeners(added, removed []string) {
	r.mu.RLock()
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(added, removed)
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	if existing, ok := r.tools[tool.Name()]; ok {
		fmt.Printf("[Registry] WARNING: tool %q already registered (%T), overwritten by %T\n",
			tool.Name(), existing, tool)
	}
	r.tools[tool.Name()] = tool
	r.mu.Unlock()

	r.notifyListeners([]string{tool.Name()}, nil)
}

// Unregister removes a tool from the registry by name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()

	if existed {
		r.notifyListeners(nil, []string{name})
	}
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools as model tool definitions, sorted by name so
// payloads are deterministic.
func (r *Registry) List() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ai.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool and returns the result. Unknown tools and tool
// panics become error results fed back to the model so it can
// self-correct; they never abort the round.
func (r *Registry) Execute(ctx context.Context, toolCall *ai.ToolCall) *ToolResult {
	fmt.Printf("[Registry] Executing tool: %s\n", toolCall.Name)

	r.mu.RLock()
	tool, ok := r.tools[toolCall.Name]
	r.mu.RUnlock()

	if !ok {
		r.mu.RLock()
		available := make([]string, 0, len(r.tools))
		for name := range r.tools {
			available = append(available, name)
		}
		r.mu.RUnlock()
		sort.Strings(available)

		return &ToolResult{
			Content: fmt.Sprintf(
				"TOOL ERROR: %q does not exist. Do NOT call it again.\nYour available tools are: %s",
				toolCall.Name, strings.Join(available, ", ")),
			IsError: true,
		}
	}

	result, err := tool.Execute(ctx, toolCall.Input)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("tool %s failed: %v", toolCall.Name, err),
			IsError: true,
		}
	}
	if result == nil {
		return &ToolResult{Content: ""}
	}
	return result
}
