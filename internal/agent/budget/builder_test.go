package budget

import (
	"fmt"
	"strings"
	"testing"

	"github.com/perchbot/perch/internal/agent/ai"
)

func makeTurns(n, textLen int) []ai.Turn {
	turns := make([]ai.Turn, n)
	for i := range turns {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turns[i] = ai.Turn{Role: role, Text: strings.Repeat("x", textLen) + fmt.Sprintf(" #%d", i)}
	}
	return turns
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	if got := EstimateTokens("abc"); got != 1 {
		t.Errorf("EstimateTokens(3 chars) = %d, want 1", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("EstimateTokens(5 chars) = %d, want 2", got)
	}
}

// estimatePayload recomputes the builder's own accounting for a
// produced message list so the bound can be checked from outside.
func estimatePayload(b *Builder, system string, tools []ai.ToolDefinition, msgs []ai.Message) int {
	total := EstimateTokens(system) + len(tools)*perToolTokens
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name)
	}
	total += EstimateTokens(strings.Join(names, ", "))
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
		for _, part := range m.Parts {
			switch part.Kind {
			case ai.PartImage:
				total += imageTokens
			case ai.PartFile:
				total += EstimateBytes(len(part.Data))
			default:
				total += EstimateTokens(part.Text)
			}
		}
	}
	return total
}

func TestBuildNeverExceedsBudget(t *testing.T) {
	tools := []ai.ToolDefinition{
		{Name: "clock", Description: "tells time"},
		{Name: "weather", Description: "forecast"},
	}
	system := strings.Repeat("You are a helpful assistant. ", 20)

	for _, ceiling := range []int{1100, 2000, 8192, 50000} {
		b := NewBuilder(ceiling, 500, 1000)
		msgs := b.Build(system, tools, "What is the weather tomorrow?", makeTurns(40, 900), nil)

		got := estimatePayload(b, system, tools, msgs)
		if got > ceiling-b.ResponseReserve {
			t.Errorf("ceiling=%d: payload estimate %d exceeds %d", ceiling, got, ceiling-b.ResponseReserve)
		}
		last := msgs[len(msgs)-1]
		if last.Role != "user" || last.Content != "What is the weather tomorrow?" {
			t.Errorf("ceiling=%d: current turn not last: %+v", ceiling, last)
		}
	}
}

func TestBuildGreedyPrefixSelection(t *testing.T) {
	history := makeTurns(10, 400) // each turn ~101 tokens
	// Budget sized so only the newest 3 turns fit.
	perTurn := EstimateTokens(history[0].Text)
	b := NewBuilder(DefaultResponseReserve+perTurn*3+perTurn/2, 0, 1000)

	msgs := b.Build("", nil, "", history, nil)

	// 3 history turns plus the current turn.
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4: %+v", len(msgs), msgs)
	}
	for i := 0; i < 3; i++ {
		want := history[7+i].Text
		if msgs[i].Content != want {
			t.Errorf("msgs[%d] = %q, want %q (newest 3 turns, chronological)", i, msgs[i].Content, want)
		}
	}
}

func TestBuildTruncatesAndMarksHistory(t *testing.T) {
	b := NewBuilder(DefaultContextTokens, DefaultResponseReserve, 50)
	history := []ai.Turn{
		{Role: "user", Text: strings.Repeat("a", 200), AttachmentName: "report.pdf"},
	}

	msgs := b.Build("", nil, "next", history, nil)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	got := msgs[0].Content
	if !strings.HasPrefix(got, "[attachment: report.pdf] ") {
		t.Errorf("missing attachment marker: %q", got)
	}
	if len(got) != len("[attachment: report.pdf] ")+50 {
		t.Errorf("history text not truncated to cap: len=%d", len(got))
	}
}

func TestBuildDropsAllHistoryWhenBudgetNegative(t *testing.T) {
	b := NewBuilder(100, 8000, 1000) // reserve alone exceeds the ceiling
	msgs := b.Build("system", nil, "hello", makeTurns(5, 10), nil)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want only the current turn", len(msgs))
	}
	if msgs[0].Content != "hello" {
		t.Errorf("current turn = %q", msgs[0].Content)
	}
}

func TestBuildCurrentTurnWithAttachments(t *testing.T) {
	b := NewBuilder(DefaultContextTokens, DefaultResponseReserve, DefaultHistoryCharCap)
	attachments := []ai.Attachment{
		{Kind: ai.PartImage, Data: []byte{0xFF, 0xD8}, MediaType: "image/jpeg", FileName: "photo.jpg"},
		{Kind: ai.PartFile, Data: []byte("hello world"), MediaType: "text/plain", FileName: "notes.txt"},
	}

	msgs := b.Build("", nil, "describe these", nil, attachments)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	parts := msgs[0].Parts
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3 (image, file, text)", len(parts))
	}
	if parts[0].Kind != ai.PartImage || parts[1].Kind != ai.PartFile {
		t.Errorf("attachment parts out of order: %v %v", parts[0].Kind, parts[1].Kind)
	}
	if parts[2].Kind != ai.PartText || parts[2].Text != "describe these" {
		t.Errorf("text part must come last: %+v", parts[2])
	}
}

func TestBuildStopsAtFirstTurnThatDoesNotFit(t *testing.T) {
	// Middle turn is huge; although older small turns would fit, the
	// walk must stop at the first miss.
	history := []ai.Turn{
		{Role: "user", Text: "tiny old"},
		{Role: "assistant", Text: strings.Repeat("b", 999)},
		{Role: "user", Text: "tiny new"},
	}
	newest := EstimateTokens("tiny new")
	b := NewBuilder(DefaultResponseReserve+newest+20, 0, 1000)

	msgs := b.Build("", nil, "", history, nil)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (newest turn + current)", len(msgs))
	}
	if msgs[0].Content != "tiny new" {
		t.Errorf("msgs[0] = %q, want the newest turn only", msgs[0].Content)
	}
}
