package db

import (
	"context"
	"fmt"
	"time"
)

// UsageTotals aggregates token counts for one model.
type UsageTotals struct {
	Model        string `json:"model"`
	Calls        int64  `json:"calls"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// RecordUsage appends one usage event. Called once per successful
// assistant request, keyed by the model that actually served it.
func (s *Store) RecordUsage(ctx context.Context, model string, inputTokens, outputTokens int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (model, input_tokens, output_tokens) VALUES (?, ?, ?)`,
		model, inputTokens, outputTokens,
	)
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", model, err)
	}
	return nil
}

// UsageSummary returns per-model totals since the given time.
// A zero time means all recorded history.
func (s *Store) UsageSummary(ctx context.Context, since time.Time) ([]UsageTotals, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(input_tokens), SUM(output_tokens)
		 FROM usage_events WHERE created_at >= ?
		 GROUP BY model ORDER BY model`,
		since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageTotals
	for rows.Next() {
		var t UsageTotals
		if err := rows.Scan(&t.Model, &t.Calls, &t.InputTokens, &t.OutputTokens); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
