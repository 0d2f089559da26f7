package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/memory"
	"github.com/rcliao/emotion-memory/internal/model"
)

func textOutput() bool { return formatFlag == "text" }

func printJSON(cmd *cobra.Command, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func printEntry(w io.Writer, m model.MemoryEntry) {
	ec := m.EmotionalContext
	fmt.Fprintf(w, "%s  %s  %s %.2f/%.2f  importance %.2f  created %s",
		m.ID, m.MemoryType, ec.PrimaryEmotion, ec.Intensity, ec.Confidence,
		m.ImportanceScore, humanize.Time(m.CreatedAt))
	if m.AccessCount > 0 {
		fmt.Fprintf(w, "  accessed %s (%s times)", humanize.Time(m.LastAccessed), humanize.Comma(int64(m.AccessCount)))
	}
	fmt.Fprintln(w)
	if len(m.Tags) > 0 {
		fmt.Fprintf(w, "  tags: %s\n", strings.Join(m.Tags, ", "))
	}
	fmt.Fprintf(w, "  %s\n", m.Content)
}

func printEntries(cmd *cobra.Command, entries []model.MemoryEntry) {
	if !textOutput() {
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "[]")
			return
		}
		printJSON(cmd, entries)
		return
	}
	for _, m := range entries {
		printEntry(cmd.OutOrStdout(), m)
	}
}

func printScored(cmd *cobra.Command, results []memory.ScoredEntry) {
	if !textOutput() {
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "[]")
			return
		}
		printJSON(cmd, results)
		return
	}
	w := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(w, "%.3f  (content %.2f, emotion %.2f, recency %.3f, importance %.2f, frequency %.2f)\n",
			r.Total, r.Score.Content, r.Score.Emotional, r.Score.Recency, r.Score.Importance, r.Score.Frequency)
		printEntry(w, r.Memory)
	}
}

func printLines(cmd *cobra.Command, lines []string) {
	if !textOutput() {
		printJSON(cmd, lines)
		return
	}
	for _, l := range lines {
		fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", l)
	}
}
