package cli

import (
	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Record or show confusion matrices",
	}

	put := &cobra.Command{
		Use:   "put <project-id> <version>",
		Short: "Record the confusion matrix of a version",
		Args:  cobra.ExactArgs(2),
		Run:   runMatrixPut,
	}
	put.Flags().Int64("tp", 0, "True positives")
	put.Flags().Int64("fp", 0, "False positives")
	put.Flags().Int64("tn", 0, "True negatives")
	put.Flags().Int64("fn", 0, "False negatives")

	get := &cobra.Command{
		Use:   "get <project-id> <version>",
		Short: "Show the confusion matrix of a version",
		Args:  cobra.ExactArgs(2),
		Run:   runMatrixGet,
	}

	cmd.AddCommand(put, get)
	RootCmd.AddCommand(cmd)
}

func runMatrixPut(cmd *cobra.Command, args []string) {
	m := model.ConfusionMatrix{ProjectID: args[0], Label: args[1]}
	m.TruePositives, _ = cmd.Flags().GetInt64("tp")
	m.FalsePositives, _ = cmd.Flags().GetInt64("fp")
	m.TrueNegatives, _ = cmd.Flags().GetInt64("tn")
	m.FalseNegatives, _ = cmd.Flags().GetInt64("fn")

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.PutConfusionMatrix(cmd.Context(), m); err != nil {
		exitErr("put confusion matrix", err)
	}
	printJSON(m)
}

func runMatrixGet(cmd *cobra.Command, args []string) {
	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.GetConfusionMatrix(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("get confusion matrix", err)
	}
	printJSON(map[string]interface{}{"confusion_matrices": map[string]*model.ConfusionMatrix{args[1]: m}})
}
