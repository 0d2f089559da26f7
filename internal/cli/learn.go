package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Learn from an interaction record",
		Long: "Record an interaction (JSON from --file or stdin) as a learning moment. " +
			"Fields: type, user_response, ai_response, emotional_context, success_indicators, adaptation_needed.",
		Run: runLearn,
	}

	cmd.Flags().String("file", "", "Interaction JSON file (default: stdin)")

	RootCmd.AddCommand(cmd)
}

func runLearn(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")

	data, err := readFileOrStdin(file)
	if err != nil {
		exitErr("read interaction", err)
	}
	in, err := model.ParseInteraction(data)
	if err != nil {
		exitErr("parse interaction", err)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	if err := s.LearnFromInteraction(ctx, in); err != nil {
		exitErr("learn", err)
	}

	moments := s.LearningMoments()
	printJSON(cmd, map[string]any{
		"ok":               true,
		"learning_moment":  moments[len(moments)-1].ID,
		"learning_moments": len(moments),
	})
}
