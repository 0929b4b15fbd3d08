package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"voting-ledger/config"
)

const programName = "voting-ledger"

// Set at build time with -ldflags "-X main.version=... -X main.commitHash=..."
var (
	version    = "devel"
	commitHash = "unknown"
)

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// commonRun installs the process logger and sizes GOMAXPROCS
func commonRun(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := cfg.Logging.NewLogger(w, globalFlags.debug)
	slog.SetDefault(logger)
	_, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "component", programName)
	}))
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	logger.Info(
		"version: "+versionString(),
		"component", programName,
	)
	return logger
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s)", version, commitHash)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), programName, versionString())
		},
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Ledger-backed voting service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, args)
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(verifyLedgerCommand())
	rootCmd.AddCommand(walletCommand())
	rootCmd.AddCommand(versionCommand())
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
