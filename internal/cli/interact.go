package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/coordinator"
)

func init() {
	cmd := &cobra.Command{
		Use:   "interact [text]",
		Short: "Process one conversational turn",
		Long: "Detect the emotion of a message, recall related memories, adapt the personality and pick a reply template. " +
			"Feedback flags record the turn as a learning moment.",
		Run: runInteract,
	}

	emotionFlags(cmd, 0.5, 0.7)
	cmd.Flags().Float64("satisfaction", -1, "User satisfaction in [0, 1]; enables learning")
	cmd.Flags().Bool("negative", false, "Mark the feedback as negative; enables learning")
	cmd.Flags().String("issues", "", "Comma-separated issues: too_formal, too_casual, not_empathetic, too_direct, not_enthusiastic")
	cmd.Flags().String("positive", "", "Comma-separated positive indicators")
	cmd.Flags().Bool("insights", false, "Also print insights after the turn")

	RootCmd.AddCommand(cmd)
}

func runInteract(cmd *cobra.Command, args []string) {
	withInsights, _ := cmd.Flags().GetBool("insights")

	text, err := readInput(args)
	if err != nil {
		exitErr("interact", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		exitErr("interact", fmt.Errorf("text is required (positional arg or stdin)"))
	}
	detected, err := emotionFromFlags(cmd)
	if err != nil {
		exitErr("interact", err)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	c := coordinator.New(s, coordinator.Options{Classifier: openClassifier(), Observer: obs})
	res, err := c.ProcessInteraction(ctx, coordinator.Input{
		Text:     text,
		Detected: detected,
		Feedback: feedbackFromFlags(cmd),
	})
	if err != nil {
		exitErr("interact", err)
	}

	if withInsights {
		printJSON(cmd, map[string]any{"result": res, "insights": c.Insights()})
		return
	}
	if textOutput() {
		w := cmd.OutOrStdout()
		ec := res.EmotionalContext
		fmt.Fprintf(w, "%s (%.2f)  style %s  recalled %d  rapport %.2f\n",
			ec.PrimaryEmotion, ec.Intensity, res.CommunicationStyle, res.RelevantMemories, res.RapportScore)
		fmt.Fprintln(w, res.ResponseTemplate)
		return
	}
	printJSON(cmd, res)
}

// feedbackFromFlags returns nil unless a feedback flag was given.
func feedbackFromFlags(cmd *cobra.Command) *coordinator.Feedback {
	flags := cmd.Flags()
	if !flags.Changed("satisfaction") && !flags.Changed("negative") &&
		!flags.Changed("issues") && !flags.Changed("positive") {
		return nil
	}

	fb := &coordinator.Feedback{}
	if flags.Changed("satisfaction") {
		v, _ := flags.GetFloat64("satisfaction")
		fb.Satisfaction = &v
	}
	fb.Negative, _ = flags.GetBool("negative")
	issues, _ := flags.GetString("issues")
	for _, is := range splitList(issues) {
		fb.Issues = append(fb.Issues, coordinator.Issue(is))
	}
	positive, _ := flags.GetString("positive")
	fb.PositiveIndicators = splitList(positive)
	return fb
}
