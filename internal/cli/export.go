package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export projects and metrics as JSON",
		Long:  "Export projects with their versions and confusion matrices. Filter by project with -p.",
		Run:   runExport,
	}

	cmd.Flags().StringP("project", "p", "", "Filter by project id")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	dump, err := s.ExportAll(cmd.Context(), project)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(dump)
}
