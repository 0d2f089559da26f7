package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/memory"
	"github.com/rcliao/emotion-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long: "Store a memory. Content can be a positional arg or piped via stdin. " +
			"Without --emotion the configured classifier labels the content.",
		Run: runRemember,
	}

	cmd.Flags().String("type", string(model.ConversationContext), "Memory type")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().Float64P("importance", "i", memory.DefaultImportance, "Importance score in [0, 1]")
	emotionFlags(cmd, 0.5, 0.7)

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	typeName, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetString("tags")
	importance, _ := cmd.Flags().GetFloat64("importance")

	content, err := readInput(args)
	if err != nil {
		exitErr("remember", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}
	memType, err := model.ParseMemoryType(typeName)
	if err != nil {
		exitErr("remember", err)
	}
	ec, err := emotionFromFlags(cmd)
	if err != nil {
		exitErr("remember", err)
	}

	ctx := cmd.Context()
	if ec == nil {
		detected := model.NewEmotionalContext(model.Neutral, 0.5, 0.5)
		if cl := openClassifier(); cl != nil {
			if detected, err = cl.Classify(ctx, content); err != nil {
				exitErr("classify", err)
			}
		}
		ec = &detected
	}

	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	id, err := s.Store(ctx, memory.StoreParams{
		Content:          content,
		MemoryType:       memType,
		EmotionalContext: *ec,
		ImportanceScore:  importance,
		Tags:             splitList(tags),
	})
	if err != nil {
		exitErr("remember", err)
	}

	m, _ := s.Get(id)
	if textOutput() {
		printEntry(cmd.OutOrStdout(), m)
		return
	}
	printJSON(cmd, m)
}
