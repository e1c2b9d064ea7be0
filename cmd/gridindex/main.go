package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwantia/gridindex/config"
	"github.com/mwantia/gridindex/log"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	LogLevel string
	LogFile  string
	LogJSON  bool
}

var global = &globalOptions{}

var rootCommand = &cobra.Command{
	Use:   "gridindex",
	Short: "Index archive trees of meteorological record files",
	Long: `gridindex builds collection indexes for the leaf directories of an
archive tree and partition indexes for every directory above them, so that
later queries never have to open the raw files again.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCommand.PersistentFlags()

	flags.StringVar(&global.LogLevel, "log-level", "",
		"Log level (debug, info, warn, error). Overrides the configuration file.")
	flags.StringVar(&global.LogFile, "log-file", "",
		"Additionally write logs into a rotated file.")
	flags.BoolVar(&global.LogJSON, "log-json", false,
		"Write logs as JSON lines.")

	rootCommand.AddCommand(buildCommand, showCommand, findCommand)
}

// newLogger creates the logger of the log section with the global flags
// applied on top.
func newLogger(cmd *cobra.Command, lc config.LogConfig) (*log.Logger, error) {
	lc, err := applyLogFlags(lc, cmd.Flags().Changed)
	if err != nil {
		return nil, err
	}
	return lc.NewLogger("gridindex", false), nil
}

func applyLogFlags(lc config.LogConfig, changed func(name string) bool) (config.LogConfig, error) {
	if changed("log-level") {
		level, err := log.ParseLevel(global.LogLevel)
		if err != nil {
			return lc, err
		}
		lc.Level = level
	}
	if changed("log-file") {
		lc.File = global.LogFile
	}
	if changed("log-json") {
		lc.JSON = global.LogJSON
	}
	return lc, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
