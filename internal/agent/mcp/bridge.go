// Package mcp connects to external MCP servers listed in the config
// and registers their tools as proxies in the agent's tool registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/perchbot/perch/internal/agent/tools"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/logging"
)

var mcpLog = logging.Component("MCP")

// Bridge owns one session per configured server for the process
// lifetime. Connect failures are reported but never fatal; the
// assistant runs with whatever subset came up.
type Bridge struct {
	mu          sync.Mutex
	registry    *tools.Registry
	connections map[string]*connection // server name → live connection
}

type connection struct {
	session   *mcp.ClientSession
	toolNames []string // namespaced names registered in the registry
}

// New creates a bridge over the given registry.
func New(registry *tools.Registry) *Bridge {
	return &Bridge{
		registry:    registry,
		connections: make(map[string]*connection),
	}
}

// ConnectAll connects every configured server. It returns the last
// connect error so callers can log it, but partial success is success.
func (b *Bridge) ConnectAll(ctx context.Context, servers []config.MCPServerConfig) error {
	var lastErr error
	for _, srv := range servers {
		if srv.URL == "" {
			continue
		}
		if err := b.Connect(ctx, srv); err != nil {
			mcpLog.Warnf("server %s unavailable: %v", srv.Name, err)
			lastErr = err
		}
	}
	return lastErr
}

// Connect dials one server, lists its tools, and registers a proxy for
// each under a namespaced name.
func (b *Bridge) Connect(ctx context.Context, srv config.MCPServerConfig) error {
	b.Disconnect(srv.Name)

	transport := &mcp.StreamableClientTransport{
		Endpoint:   srv.URL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "perch",
		Version: "1.0.0",
	}, &mcp.ClientOptions{
		KeepAlive: 30 * time.Second,
	})

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", srv.URL, err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	conn := &connection{
		session:   session,
		toolNames: make([]string, 0, len(listed.Tools)),
	}
	for _, mt := range listed.Tools {
		var schema json.RawMessage
		if mt.InputSchema != nil {
			schema, _ = json.Marshal(mt.InputSchema)
		}
		proxy := &proxyTool{
			name:         toolName(srv.Name, mt.Name),
			originalName: mt.Name,
			description:  mt.Description,
			inputSchema:  schema,
			session:      session,
		}
		b.registry.Register(proxy)
		conn.toolNames = append(conn.toolNames, proxy.name)
	}

	b.mu.Lock()
	b.connections[srv.Name] = conn
	b.mu.Unlock()

	mcpLog.Infof("server %s connected: %d tools registered", srv.Name, len(listed.Tools))
	return nil
}

// Disconnect unregisters a server's proxy tools and closes its session.
func (b *Bridge) Disconnect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectLocked(name)
}

func (b *Bridge) disconnectLocked(name string) {
	conn, ok := b.connections[name]
	if !ok {
		return
	}
	for _, tn := range conn.toolNames {
		b.registry.Unregister(tn)
	}
	conn.session.Close()
	delete(b.connections, name)
	mcpLog.Infof("server %s disconnected: %d tools unregistered", name, len(conn.toolNames))
}

// Close disconnects every server.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name := range b.connections {
		b.disconnectLocked(name)
	}
}

// toolName namespaces a remote tool: mcp__{server}__{tool}.
func toolName(server, original string) string {
	s := strings.ReplaceAll(strings.ToLower(server), " ", "_")
	return fmt.Sprintf("mcp__%s__%s", s, original)
}

// proxyTool forwards Execute calls to the remote server's session.
type proxyTool struct {
	name         string
	originalName string
	description  string
	inputSchema  json.RawMessage
	session      *mcp.ClientSession
}

func (t *proxyTool) Name() string        { return t.name }
func (t *proxyTool) Description() string { return t.description }

func (t *proxyTool) Schema() json.RawMessage {
	if len(t.inputSchema) > 0 {
		return t.inputSchema
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (t *proxyTool) Execute(ctx context.Context, input json.RawMessage) (*tools.ToolResult, error) {
	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("parse tool arguments: %w", err)
		}
	}

	result, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.originalName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP tool %s: %w", t.originalName, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok && tc.Text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tc.Text)
		}
	}
	return &tools.ToolResult{Content: sb.String(), IsError: result.IsError}, nil
}
