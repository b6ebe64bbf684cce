package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List the version labels of a project",
		Args:  cobra.ExactArgs(1),
		Run:   runList,
	}

	cmd.Flags().Bool("plain", false, "One label per line instead of JSON")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	plain, _ := cmd.Flags().GetBool("plain")

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	labels, err := s.ListVersions(cmd.Context(), args[0])
	if err != nil {
		exitErr("list", err)
	}

	if plain {
		for _, l := range labels {
			fmt.Println(l)
		}
		return
	}
	printJSON(map[string]interface{}{"project_id": args[0], "versions": labels})
}
