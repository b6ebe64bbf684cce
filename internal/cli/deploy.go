package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "deploy <project-id> <version>",
		Short: "Deploy a version and print its prediction URL",
		Long:  "Deploy a version. Repeated calls return the URL minted by the first one.",
		Args:  cobra.ExactArgs(2),
		Run:   runDeploy,
	}

	RootCmd.AddCommand(cmd)
}

func runDeploy(cmd *cobra.Command, args []string) {
	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ep, err := s.Deploy(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("deploy", err)
	}
	printJSON(ep)
}
