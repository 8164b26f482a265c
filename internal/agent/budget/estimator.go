// Package budget assembles bounded conversation payloads from
// unbounded history under a context-token ceiling.
package budget

// Token cost heuristics. Roughly 4 characters per token holds well
// enough across the providers we target; a precise tokenizer would be
// per-model and is not worth the dependency for budgeting.
const (
	charsPerToken = 4

	// perToolTokens approximates one tool's schema contribution.
	perToolTokens = 200

	// imageTokens is a flat estimate per attached image.
	imageTokens = 1500
)

// EstimateTokens approximates the token cost of text, rounding up.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateBytes approximates the token cost of raw file bytes.
func EstimateBytes(n int) int {
	return n / charsPerToken
}
