package cli

import (
	"github.com/spf13/cobra"

	"github.com/privgraph/modelhub/internal/aggregate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "aggregate <project-id>...",
		Short: "Compare the learning curves of several projects",
		Long: "Fetch every version of every listed project. Projects that cannot be read are reported " +
			"under \"unavailable\" instead of failing the whole comparison.",
		Args: cobra.MinimumNArgs(1),
		Run:  runAggregate,
	}

	cmd.Flags().Bool("chart", false, "Print chart series instead of raw metrics")
	cmd.Flags().Int("workers", 0, "Concurrent project fetches (default: config aggregate.workers)")

	RootCmd.AddCommand(cmd)
}

func runAggregate(cmd *cobra.Command, args []string) {
	chart, _ := cmd.Flags().GetBool("chart")
	workers, _ := cmd.Flags().GetInt("workers")

	c := loadConfig()
	if workers <= 0 {
		workers = c.Aggregate.Workers
	}
	log := newLogger(cmd, c)
	defer log.Sync()

	s, err := openStore(cmd.Context(), c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := aggregate.New(s, log, workers).Aggregate(cmd.Context(), args)
	if err != nil {
		exitErr("aggregate", err)
	}
	if chart {
		printJSON(aggregate.NewChart(res))
		return
	}
	printJSON(res)
}
