package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/agent/assistant"
	"github.com/perchbot/perch/internal/agent/mcp"
	"github.com/perchbot/perch/internal/agent/tools"
	"github.com/perchbot/perch/internal/db"
	"github.com/perchbot/perch/internal/server"
)

// ServeCmd creates the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal: %v - shutting down...\n", sig)
		cancel()
	}()

	store, agent, bridge, err := buildAssistant(ctx, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if bridge != nil {
		defer bridge.Close()
	}

	srv := server.NewServer(agent, store)
	fmt.Printf("Perch listening on http://%s\n", Cfg.Server.Listen)
	if err := srv.Run(ctx, Cfg.Server.Listen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildAssistant wires the store, tool registry, MCP bridge, and
// provider candidates into one assistant. withMCP is false for
// one-shot CLI use where remote tool latency is not worth it.
func buildAssistant(ctx context.Context, withMCP bool) (*db.Store, *assistant.Assistant, *mcp.Bridge, error) {
	store, err := db.NewSQLite(Cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewClockTool())
	registry.Register(tools.NewWeatherTool())

	var bridge *mcp.Bridge
	if withMCP && len(Cfg.MCPServers) > 0 {
		bridge = mcp.New(registry)
		bridge.ConnectAll(ctx, Cfg.MCPServers)
	}

	candidates, err := BuildCandidates(Cfg)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	agent := assistant.New(Cfg, candidates, registry, store)
	return store, agent, bridge, nil
}
