package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/memory"
	"github.com/rcliao/emotion-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated, all must match)")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	typeName, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	var memType model.MemoryType
	if typeName != "" {
		t, err := model.ParseMemoryType(typeName)
		if err != nil {
			exitErr("list", err)
		}
		memType = t
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	entries := s.List(memory.ListParams{MemoryType: memType, Tags: splitList(tags), Limit: limit})
	if idsOnly {
		ids := make([]string, len(entries))
		for i, m := range entries {
			ids[i] = m.ID
		}
		printLines(cmd, ids)
		return
	}
	printEntries(cmd, entries)
}
