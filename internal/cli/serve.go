package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/privgraph/modelhub/internal/aggregate"
	"github.com/privgraph/modelhub/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the version query API over HTTP",
		Run:   runServe,
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address (default: config server.listen)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")

	c := loadConfig()
	if listen == "" {
		listen = c.Server.Listen
	}
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = c.Server.LogLevel
	}
	log := newLogger(cmd, c)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, c)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	e := server.New(s, aggregate.New(s, log, c.Aggregate.Workers), level)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("serving", zap.String("listen", listen), zap.String("driver", c.Database.Driver))
	if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		exitErr("serve", err)
	}
}
