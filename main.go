package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cian_scrooper/config"
	"cian_scrooper/logging"
)

var (
	cfg     *config.Config
	logFile *logging.RotatingWriter
)

var rootCmd = &cobra.Command{
	Use:           "cian_scrooper",
	Short:         "Cian listings and phone scraper",
	Long:          "Scrapes Cian search results for a region, resolves a contact phone for every selected listing and writes the results to the output directory.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		_, rw, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logFile = rw
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
		if logFile != nil {
			logFile.Close()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
