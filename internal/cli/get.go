package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <project-id> <version>",
		Short: "Show the learning curves of a version",
		Args:  cobra.ExactArgs(2),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	v, err := s.GetVersion(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("get", err)
	}
	printJSON(v)
}
