// Command zoomphone-tap extracts Zoom Phone users, SMS sessions and call
// history and writes them as Singer messages or into SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

// options are the flags shared by all commands.
type options struct {
	configPath  string
	streams     []string
	logLevel    string
	pretty      bool
	metricsAddr string
	outputPath  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "zoomphone-tap",
		Short:         "Extract Zoom Phone data",
		Long:          "Extracts Zoom Phone users, SMS sessions, call history and call detail using a Server-to-Server OAuth app.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flags.StringSliceVarP(&opts.streams, "stream", "s", nil, "stream to sync (repeatable; default all)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.pretty, "pretty", false, "human readable logs")

	syncCmd := newSyncCmd(opts)
	syncCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address while syncing")
	syncCmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "output path (jsonl file or sqlite database)")

	root.AddCommand(syncCmd, newStreamsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
