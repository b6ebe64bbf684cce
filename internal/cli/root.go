// Package cli implements the modelhub CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/privgraph/modelhub/internal/config"
	"github.com/privgraph/modelhub/internal/logging"
	"github.com/privgraph/modelhub/internal/store"
)

var (
	dbPath     string
	configPath string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "modelhub",
	Short: "Privacy-preserving dataset submission and model version store",
	Long: "Calibrates Laplace noise over datasets, encrypts them under Paillier keys for the training backend, " +
		"and records per-version learning curves, confusion matrices, deployments and model artifacts.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MODELHUB_DB, config, or ~/.modelhub/modelhub.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $MODELHUB_CONFIG)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default: config server.log_level)")
}

func loadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvPath)
	}
	c, err := config.Load(path)
	if err != nil {
		exitErr("load config", err)
	}
	return c
}

func getDBPath(c *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MODELHUB_DB"); env != "" {
		return env
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN != "" {
		return c.Database.DSN
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".modelhub", "modelhub.db")
}

func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	opts := []store.Option{store.WithDeployBaseURL(c.Deploy.BaseURL)}
	if c.Database.Driver == "postgres" && dbPath == "" {
		return store.NewPostgresStore(ctx, c.Database.DSN, opts...)
	}
	return store.NewSQLiteStore(getDBPath(c), opts...)
}

func newLogger(cmd *cobra.Command, c *config.Config) *zap.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = c.Server.LogLevel
	}
	log, err := logging.New(level)
	if err != nil {
		exitErr("logger", err)
	}
	return log
}

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("no input (pass a file or pipe via stdin)")
		}
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
