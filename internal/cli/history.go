package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bytemomo/narwhal/internal/adapter/jsonreport"
	"bytemomo/narwhal/internal/adapter/redishistory"
	"bytemomo/narwhal/internal/risk"
)

func newBaselineCmd(a *app) *cobra.Command {
	var oldPath, newPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Compare the techniques observed by two saved runs",
		Long: `Baseline compares two JSON run files written by "narwhal run".
Techniques only present in the old run are listed as improved, techniques
only present in the new run as new risks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			before, err := jsonreport.Load(oldPath)
			if err != nil {
				return E("baseline", "load baseline run", ExitFatal, err)
			}
			after, err := jsonreport.Load(newPath)
			if err != nil {
				return E("baseline", "load current run", ExitFatal, err)
			}
			delta := risk.CompareBaseline(before.MitreObserved, after.MitreObserved)

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(delta)
			}
			fmt.Fprintf(a.out, "Baseline: %s (score %d, %s)\n", before.RunID, before.RiskScore.Score, before.RiskScore.Level)
			fmt.Fprintf(a.out, "Current : %s (score %d, %s)\n", after.RunID, after.RiskScore.Score, after.RiskScore.Level)
			if delta.Unchanged() {
				fmt.Fprintln(a.out, "\nNo change in observed techniques")
				return nil
			}
			fmt.Fprintf(a.out, "\nImproved : %s\n", listOrNone(delta.Improved))
			fmt.Fprintf(a.out, "New risks: %s\n", listOrNone(delta.NewRisks))
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPath, "old", "", "Baseline run JSON (required)")
	cmd.Flags().StringVar(&newPath, "new", "", "Current run JSON (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the comparison as JSON")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func newTrendCmd(a *app) *cobra.Command {
	var addr, client string
	var limit int
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Summarize a client's risk score history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := addr
			if !strings.Contains(url, "://") {
				url = "redis://" + url
			}
			store, err := redishistory.New(redishistory.Options{URL: url})
			if err != nil {
				return E("trend", "connect history store", ExitFatal, err)
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), client, limit)
			if err != nil {
				return E("trend", "read history", ExitFatal, err)
			}
			t, err := risk.TrendOfHistory(entries)
			if err != nil {
				return E("trend", fmt.Sprintf("client %q", client), ExitFatal, err)
			}

			fmt.Fprintf(a.out, "Client : %s\n", client)
			fmt.Fprintf(a.out, "Runs   : %d\n", t.Runs)
			fmt.Fprintf(a.out, "Min    : %d\n", t.Min)
			fmt.Fprintf(a.out, "Max    : %d\n", t.Max)
			fmt.Fprintf(a.out, "Current: %d (%+d)\n", t.Current, t.Change)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "redis-addr", "localhost:6379", "Redis address or URL holding the history")
	cmd.Flags().StringVar(&client, "client", "", "Client name (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Only consider the most recent runs (0 = all)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
