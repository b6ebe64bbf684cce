package cli

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/pipeline"
	"github.com/privgraph/modelhub/internal/submit"
)

func init() {
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Noise, encrypt and upload a dataset to the training backend",
		Long: "Run a dataset through noise calibration and Paillier encryption and upload the payload with the " +
			"training configuration. Nothing is sent if either step fails.",
		Args: cobra.ExactArgs(1),
		Run:  runSubmit,
	}

	cmd.Flags().StringP("project", "p", "", "Project id (required)")
	cmd.Flags().StringP("user", "u", "", "Submitting user id")
	cmd.Flags().String("config-json", "{}", "Training configuration as a JSON object")
	cmd.Flags().String("backend", "", "Training backend URL (default: config backend.url)")
	addPipelineFlags(cmd)
	cmd.MarkFlagRequired("project")

	RootCmd.AddCommand(cmd)
}

func runSubmit(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")
	user, _ := cmd.Flags().GetString("user")
	confJSON, _ := cmd.Flags().GetString("config-json")
	backend, _ := cmd.Flags().GetString("backend")

	var training map[string]interface{}
	if err := json.Unmarshal([]byte(confJSON), &training); err != nil {
		exitErr("parse --config-json", err)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read dataset", err)
	}

	c := loadConfig()
	if backend == "" {
		backend = c.Backend.URL
	}
	log := newLogger(cmd, c)
	defer log.Sync()

	client := submit.NewClient(backend, c.Backend.Timeout)
	r, err := pipeline.New(client, log, pipelineOptions(cmd, c)).Upload(cmd.Context(), raw, submit.Job{
		ProjectID:     project,
		UserID:        user,
		Configuration: training,
		Filename:      filepath.Base(args[0]) + ".enc",
	})
	if err != nil {
		exitErr("submit", err)
	}
	printJSON(r)
}
