package cli

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	c := loadConfig()
	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	printJSON(struct {
		*store.Stats
		DBSize        string `json:"db_size"`
		ArtifactsSize string `json:"artifacts_size"`
	}{stats, humanize.Bytes(uint64(stats.DBSizeBytes)), humanize.Bytes(uint64(stats.ArtifactBytes))})
}
