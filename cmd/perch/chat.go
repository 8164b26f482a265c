package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/agent/assistant"
)

// ChatCmd creates the chat command
func ChatCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the assistant from the terminal",
		Long: `Send a message and stream the reply to stdout.

Examples:
  perch chat "what's the weather in Berlin?"
  perch chat --interactive`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(args, interactive)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "start interactive chat session")
	return cmd
}

func runChat(args []string, interactive bool) {
	ctx := context.Background()

	store, agent, _, err := buildAssistant(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if interactive {
		runInteractive(ctx, agent)
		return
	}

	prompt := strings.Join(args, " ")
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "Usage: perch chat \"your message\" (or --interactive)")
		os.Exit(1)
	}

	if _, err := streamOnce(ctx, agent, prompt, nil); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
}

func runInteractive(ctx context.Context, agent *assistant.Assistant) {
	fmt.Println("Interactive chat. Type 'exit' to quit.")

	var history []ai.Turn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		res, err := streamOnce(ctx, agent, line, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			continue
		}

		history = append(history,
			ai.Turn{Role: "user", Text: line},
			ai.Turn{Role: "assistant", Text: res.Text},
		)
	}
}

func streamOnce(ctx context.Context, agent *assistant.Assistant, prompt string, history []ai.Turn) (*assistant.Result, error) {
	res, err := agent.ProcessStream(ctx, &assistant.Request{
		Message: prompt,
		History: history,
	}, func(delta string) {
		fmt.Print(delta)
	})
	if err != nil {
		return nil, err
	}
	fmt.Println()
	if res.SwitchedTo != nil {
		fmt.Printf("(served by fallback %s/%s)\n", res.SwitchedTo.Name, res.SwitchedTo.Model)
	}
	return res, nil
}
