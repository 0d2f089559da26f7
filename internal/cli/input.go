package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/emotion-memory/internal/model"
)

// readInput returns the positional args joined by spaces, or piped stdin
// when there are none.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

// readFileOrStdin reads path, or stdin when path is empty or "-".
func readFileOrStdin(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// emotionFlags registers --emotion, --intensity and --confidence.
func emotionFlags(cmd *cobra.Command, intensity, confidence float64) {
	cmd.Flags().StringP("emotion", "e", "", "Primary emotion: "+emotionNames())
	cmd.Flags().Float64("intensity", intensity, "Emotion intensity in [0, 1]")
	cmd.Flags().Float64("confidence", confidence, "Emotion confidence in [0, 1]")
}

// emotionFromFlags returns nil when --emotion was not given.
func emotionFromFlags(cmd *cobra.Command) (*model.EmotionalContext, error) {
	label, _ := cmd.Flags().GetString("emotion")
	if label == "" {
		return nil, nil
	}
	e, err := model.ParseEmotion(label)
	if err != nil {
		return nil, err
	}
	intensity, _ := cmd.Flags().GetFloat64("intensity")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	ec := model.NewEmotionalContext(e, intensity, confidence)
	return &ec, nil
}

func emotionNames() string {
	names := make([]string, len(model.Emotions))
	for i, e := range model.Emotions {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}
