package cli

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Store or download trained model artifacts",
	}

	put := &cobra.Command{
		Use:   "put <project-id> <version> [file]",
		Short: "Store the model artifact of a version (file or stdin)",
		Args:  cobra.RangeArgs(2, 3),
		Run:   runArtifactPut,
	}

	get := &cobra.Command{
		Use:   "get <project-id> <version>",
		Short: "Download the model artifact of a version",
		Args:  cobra.ExactArgs(2),
		Run:   runArtifactGet,
	}
	get.Flags().StringP("out", "o", "", "Output file (required)")
	get.MarkFlagRequired("out")

	cmd.AddCommand(put, get)
	RootCmd.AddCommand(cmd)
}

func runArtifactPut(cmd *cobra.Command, args []string) {
	var name string
	if len(args) > 2 {
		name = args[2]
	}
	content, err := readInput(name)
	if err != nil {
		exitErr("read input", err)
	}

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.PutArtifact(cmd.Context(), args[0], args[1], content); err != nil {
		exitErr("put artifact", err)
	}
	printJSON(map[string]interface{}{
		"project_id": args[0],
		"version":    args[1],
		"size":       humanize.Bytes(uint64(len(content))),
	})
}

func runArtifactGet(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	a, err := s.GetArtifact(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("get artifact", err)
	}
	if err := os.WriteFile(out, a.Content, 0o644); err != nil {
		exitErr("write artifact", err)
	}
	printJSON(map[string]interface{}{
		"project_id": a.ProjectID,
		"version":    a.Label,
		"file":       out,
		"size":       humanize.Bytes(uint64(len(a.Content))),
		"created_at": a.CreatedAt,
	})
}
