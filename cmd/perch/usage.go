package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/db"
)

// UsageCmd creates the usage command
func UsageCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage per model",
		Run: func(cmd *cobra.Command, args []string) {
			runUsage(days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "how many days back to summarize")
	return cmd
}

func runUsage(days int) {
	store, err := db.NewSQLite(Cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	since := time.Now().AddDate(0, 0, -days)
	totals, err := store.UsageSummary(context.Background(), since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(totals) == 0 {
		fmt.Printf("No usage recorded in the last %d days.\n", days)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCALLS\tINPUT\tOUTPUT")
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t.Model, t.Calls, t.InputTokens, t.OutputTokens)
	}
	w.Flush()
}
