package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ClockTool reports the current date and time, optionally in a
// specific IANA timezone.
type ClockTool struct{}

type clockInput struct {
	Timezone string `json:"timezone"` // IANA name, e.g. "Europe/Berlin"
}

// NewClockTool creates a new clock tool
func NewClockTool() *ClockTool {
	return &ClockTool{}
}

func (t *ClockTool) Name() string {
	return "clock"
}

func (t *ClockTool) Description() string {
	return "Get the current date and time. Optionally pass an IANA timezone name."
}

func (t *ClockTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to the server's local time."
			}
		}
	}`)
}

func (t *ClockTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in clockInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return &ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
		}
	}

	now := time.Now()
	if in.Timezone != "" {
		loc, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("unknown timezone %q", in.Timezone), IsError: true}, nil
		}
		now = now.In(loc)
	}

	return &ToolResult{
		Content: now.Format("Monday, 2 January 2006 15:04:05 MST"),
	}, nil
}
