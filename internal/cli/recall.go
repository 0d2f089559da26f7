package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Recall memories by relevance",
		Long: "Rank memories by content overlap, emotional match, recency, importance and access frequency. " +
			"Every memory containing the query counts as accessed.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRecall,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (default: recall_limit from config)")
	cmd.Flags().Bool("scores", false, "Include the score breakdown")
	emotionFlags(cmd, 0.5, 0.7)

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	scores, _ := cmd.Flags().GetBool("scores")
	if !cmd.Flags().Changed("limit") {
		limit = cfg.RecallLimit
	}

	ec, err := emotionFromFlags(cmd)
	if err != nil {
		exitErr("recall", err)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	p := memory.RecallParams{Query: strings.Join(args, " "), EmotionalContext: ec, Limit: limit}
	if scores {
		printScored(cmd, s.RecallScored(ctx, p))
		return
	}
	printEntries(cmd, s.Recall(ctx, p))
}
