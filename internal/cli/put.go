package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Record a trained model version",
		Long: "Record the learning curves of a trained version. The version is read as JSON from a file or stdin:\n" +
			`{"project_id": "...", "version": "...", "epochs": [...], "training_accuracy": [...], "training_loss": [...], "validation_accuracy": [...]}` + "\n" +
			"--project and --version override the ids in the document. Versions are immutable once recorded.",
		Args: cobra.MaximumNArgs(1),
		Run:  runPut,
	}

	cmd.Flags().StringP("project", "p", "", "Project id")
	cmd.Flags().StringP("version", "v", "", "Version label")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")
	version, _ := cmd.Flags().GetString("version")

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	data, err := readInput(name)
	if err != nil {
		exitErr("read input", err)
	}

	var v model.ModelVersion
	if err := json.Unmarshal(data, &v); err != nil {
		exitErr("parse json", err)
	}
	if project != "" {
		v.ProjectID = project
	}
	if version != "" {
		v.Label = version
	}

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stored, err := s.PutVersion(cmd.Context(), v)
	if err != nil {
		exitErr("put", err)
	}
	printJSON(stored)
}
