package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	link := &cobra.Command{
		Use:   "link <id> <related-id>",
		Short: "Mark a memory as related to another",
		Args:  cobra.ExactArgs(2),
		Run:   runLink,
	}

	feedback := &cobra.Command{
		Use:   "feedback <id> [json]",
		Short: "Attach user feedback to a memory",
		Long:  "Merge a JSON object (positional arg or stdin) into the memory's user feedback.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runFeedback,
	}

	importance := &cobra.Command{
		Use:   "importance <id> <score>",
		Short: "Set a memory's importance score",
		Args:  cobra.ExactArgs(2),
		Run:   runImportance,
	}

	RootCmd.AddCommand(link, feedback, importance)
}

func runLink(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	if err := s.LinkMemories(ctx, args[0], args[1]); err != nil {
		exitErr("link", err)
	}
	m, _ := s.Get(args[0])
	printJSON(cmd, map[string]any{"id": m.ID, "related_memories": m.RelatedMemories})
}

func runFeedback(cmd *cobra.Command, args []string) {
	raw, err := readInput(args[1:])
	if err != nil {
		exitErr("feedback", err)
	}
	fb, err := parseObject(raw)
	if err != nil {
		exitErr("parse feedback", err)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	if err := s.AttachFeedback(ctx, args[0], fb); err != nil {
		exitErr("feedback", err)
	}
	m, _ := s.Get(args[0])
	printJSON(cmd, map[string]any{"id": m.ID, "user_feedback": m.UserFeedback})
}

func runImportance(cmd *cobra.Command, args []string) {
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		exitErr("importance", err)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	if err := s.SetImportance(ctx, args[0], score); err != nil {
		exitErr("importance", err)
	}
	printJSON(cmd, map[string]any{"id": args[0], "importance_score": score})
}
