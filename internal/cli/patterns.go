package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List derived patterns, or revise one's confidence",
		Run:   runPatterns,
	}

	cmd.Flags().String("type", "", "Filter by pattern type: emotional_pattern, behavioral_pattern, negative_interaction")
	cmd.Flags().String("id", "", "Pattern id to revise (with --confidence)")
	cmd.Flags().Float64("confidence", -1, "New confidence in [0, 1]")

	RootCmd.AddCommand(cmd)
}

func runPatterns(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	id, _ := cmd.Flags().GetString("id")
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	if id != "" {
		if !cmd.Flags().Changed("confidence") {
			exitErr("patterns", fmt.Errorf("--confidence is required with --id"))
		}
		if err := s.SetPatternConfidence(ctx, id, confidence); err != nil {
			exitErr("patterns", err)
		}
	}

	patterns := []model.MemoryPattern{}
	for _, p := range s.Patterns() {
		if (typ == "" || p.PatternType == typ) && (id == "" || p.PatternID == id) {
			patterns = append(patterns, p)
		}
	}

	if !textOutput() {
		printJSON(cmd, patterns)
		return
	}
	w := cmd.OutOrStdout()
	for _, p := range patterns {
		fmt.Fprintf(w, "%s  %s  seen %s times  confidence %.2f  last %s\n",
			p.PatternID, p.PatternType, humanize.Comma(int64(p.Frequency)), p.Confidence, humanize.Time(p.LastObserved))
	}
}
