package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import projects and metrics from JSON",
		Long:  "Import from stdin, in the format produced by export. Existing records are skipped.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var dump store.Export
	if err := json.Unmarshal(data, &dump); err != nil {
		exitErr("parse json", err)
	}

	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	imported, err := s.Import(cmd.Context(), &dump)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", imported)
}
