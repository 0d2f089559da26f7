package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Summarize recently accessed emotions",
		Run:   runSummary,
	}
	summary.Flags().Int("hours", 0, "Window in hours (default: summary_window_hours from config)")

	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Show adaptation suggestions derived from patterns",
		Run:   runSuggest,
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Export the reporting view as JSON",
		Long:  "Totals, per-type counts, the 24 hour summary, pattern summaries and suggestions. Use dump for a full backup.",
		Run:   runExport,
	}

	RootCmd.AddCommand(summary, suggest, export)
}

func runSummary(cmd *cobra.Command, args []string) {
	hours, _ := cmd.Flags().GetInt("hours")
	if !cmd.Flags().Changed("hours") {
		hours = cfg.SummaryWindow
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	r := s.Summary(hours)
	if !textOutput() {
		printJSON(cmd, r)
		return
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "last %d hours: %s memories, dominant %s\n", r.TimeWindowHours, humanize.Comma(int64(r.TotalMemories)), r.DominantEmotion)
	fmt.Fprintf(w, "average intensity %.2f, confidence %.2f\n", r.AverageIntensity, r.AverageConfidence)
	for e, n := range r.EmotionalDistribution {
		fmt.Fprintf(w, "  %-10s %d\n", e, n)
	}
}

func runSuggest(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	printLines(cmd, s.AdaptationSuggestions())
}

func runExport(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	printJSON(cmd, s.Export())
}
