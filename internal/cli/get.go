package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory by id",
		Long:  "Retrieve a memory by id. Reading by id does not count as an access.",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore(ctx, s)

	m, ok := s.Get(args[0])
	if !ok {
		exitErr("get", fmt.Errorf("memory %q not found", args[0]))
	}
	if textOutput() {
		printEntry(cmd.OutOrStdout(), m)
		return
	}
	printJSON(cmd, m)
}
