package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	st, err := s.Stats(ctx)
	if err != nil {
		exitErr("stats", err)
	}
	if !textOutput() {
		printJSON(cmd, st)
		return
	}

	w := cmd.OutOrStdout()
	b := st.Backend
	fmt.Fprintf(w, "%s at %s (%s)\n", b.Backend, b.Location, humanize.Bytes(uint64(max(b.SizeBytes, 0))))
	fmt.Fprintf(w, "memories:         %s\n", humanize.Comma(int64(st.Memories)))
	fmt.Fprintf(w, "patterns:         %s\n", humanize.Comma(int64(st.Patterns)))
	fmt.Fprintf(w, "learning moments: %s\n", humanize.Comma(int64(st.LearningMoments)))
	fmt.Fprintf(w, "history records:  %s\n", humanize.Comma(int64(st.HistoryRecords)))
	for _, tc := range b.MemoryTypes {
		fmt.Fprintf(w, "  %-22s %s\n", tc.MemoryType, humanize.Comma(int64(tc.Count)))
	}
}
