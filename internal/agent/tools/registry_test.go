package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/perchbot/perch/internal/agent/ai"
)

type fakeTool struct {
	name    string
	result  *ToolResult
	err     error
	lastRaw json.RawMessage
}

func (t *fakeTool) Name() string            { return t.name }
func (t *fakeTool) Description() string     { return "fake tool " + t.name }
func (t *fakeTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (t *fakeTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	t.lastRaw = input
	return t.result, t.err
}

func TestRegistryListSortedByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "zebra"})
	r.Register(&fakeTool{name: "apple"})
	r.Register(&fakeTool{name: "mango"})

	defs := r.List()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions", len(defs))
	}
	for i, want := range []string{"apple", "mango", "zebra"} {
		if defs[i].Name != want {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, want)
		}
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "clock"})

	res := r.Execute(context.Background(), &ai.ToolCall{ID: "c1", Name: "nonexistent"})
	if !res.IsError {
		t.Fatal("want IsError for unknown tool")
	}
	if !strings.Contains(res.Content, "clock") {
		t.Errorf("error should list available tools, got %q", res.Content)
	}
}

func TestRegistryExecuteToolError(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "broken", err: errors.New("boom")})

	res := r.Execute(context.Background(), &ai.ToolCall{ID: "c1", Name: "broken"})
	if !res.IsError || !strings.Contains(res.Content, "boom") {
		t.Errorf("res = %+v", res)
	}
}

func TestRegistryExecutePassesInput(t *testing.T) {
	ft := &fakeTool{name: "echo", result: &ToolResult{Content: "ok"}}
	r := NewRegistry()
	r.Register(ft)

	input := json.RawMessage(`{"value":42}`)
	res := r.Execute(context.Background(), &ai.ToolCall{ID: "c1", Name: "echo", Input: input})
	if res.IsError || res.Content != "ok" {
		t.Errorf("res = %+v", res)
	}
	if string(ft.lastRaw) != string(input) {
		t.Errorf("tool saw input %s", ft.lastRaw)
	}
}

func TestRegistryChangeListeners(t *testing.T) {
	r := NewRegistry()

	var added, removed []string
	r.OnChange(func(a, rm []string) {
		added = append(added, a...)
		removed = append(removed, rm...)
	})

	r.Register(&fakeTool{name: "clock"})
	r.Unregister("clock")

	if len(added) != 1 || added[0] != "clock" {
		t.Errorf("added = %v", added)
	}
	if len(removed) != 1 || removed[0] != "clock" {
		t.Errorf("removed = %v", removed)
	}
}

func TestClockTool(t *testing.T) {
	clock := &ClockTool{}
	res, err := clock.Execute(context.Background(), json.RawMessage(`{"timezone":"UTC"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError || !strings.Contains(res.Content, "UTC") {
		t.Errorf("res = %+v", res)
	}

	res, err = clock.Execute(context.Background(), json.RawMessage(`{"timezone":"Not/AZone"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Error("want IsError for unknown timezone")
	}
}
