package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/rcliao/emotion-memory/internal/memory"
)

func init() {
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Dump every memory, pattern and learning moment as JSON",
		Long:  "Dump the full store as JSON. The output can be loaded into another database with import.",
		Run:   runDump,
	}

	imp := &cobra.Command{
		Use:   "import",
		Short: "Import a dump",
		Long: "Import a dump (stdin or --file) in the format produced by dump. " +
			"Memories whose id already exists are skipped.",
		Run: runImport,
	}
	imp.Flags().String("file", "", "Dump file (default: stdin)")

	RootCmd.AddCommand(dump, imp)
}

func runDump(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	printJSON(cmd, s.Entries())
}

func runImport(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")

	data, err := readFileOrStdin(file)
	if err != nil {
		exitErr("read dump", err)
	}
	var d memory.Dump
	if err := json.Unmarshal(data, &d); err != nil {
		exitErr("parse json", err)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	res, err := s.Import(ctx, d)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(cmd, res)
}

// parseObject decodes a JSON object into a map.
func parseObject(raw string) (map[string]any, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("malformed JSON")
	}
	obj, ok := gjson.Parse(raw).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return obj, nil
}
