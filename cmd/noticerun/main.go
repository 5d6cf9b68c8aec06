package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/noticerun/internal/config"
)

const (
	appName = "noticerun"
	version = "v1.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	// contexts without a logger still get the global one
	zerolog.DefaultContextLogger = &log.Logger

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Rent increase notice automation",
		Version: version,
		Long: `noticerun computes annual rent increases, posts them for review and
delivers the approved notices to each lease and building.

Phases are normally triggered by task webhooks ('noticerun serve'); the
run subcommands execute a single phase by hand.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", level)
		}
		zerolog.SetGlobalLevel(lvl)
		return nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one phase against a task",
		Long:  "Execute the review, delivery or deposit-interest phase for a single task",
	}

	prelimCmd := &cobra.Command{
		Use:   "prelim",
		Short: "Compute increases and post them for review",
		Long:  "Gathers eligible leases, computes increases and attaches the review bundle to the task",
		RunE:  runPrelim,
	}

	noticesCmd := &cobra.Command{
		Use:   "notices",
		Short: "Deliver the reviewed notices",
		Long:  "Opens the review bundle attached to the task and delivers every building",
		RunE:  runNotices,
	}

	lmrCmd := &cobra.Command{
		Use:   "lmr",
		Short: "Post last-month-rent interest totals",
		Long:  "Computes this month's interest on last-month-rent deposits and posts totals by property",
		RunE:  runLMR,
	}

	for _, cmd := range []*cobra.Command{prelimCmd, noticesCmd, lmrCmd} {
		addTaskFlags(cmd.Flags())
		_ = cmd.MarkFlagRequired("task")
	}
	runCmd.AddCommand(prelimCmd, noticesCmd, lmrCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook trigger server",
		Long:  "Starts the HTTP server receiving task webhooks, with /health and /metrics endpoints",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Override server host")
	serveCmd.Flags().Int("port", 0, "Override server port")

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a handoff key",
		Long:  "Prints a random base64 key for sealing review bundles",
		RunE:  runKeygen,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(runCmd, serveCmd, keygenCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// addTaskFlags registers the flags shared by the run subcommands.
func addTaskFlags(fs *pflag.FlagSet) {
	fs.Int64("account", 0, "Account id (uses upstream credentials from config when not in the account store)")
	fs.Int64("task", 0, "Task id (required)")
	fs.SortFlags = false
}

// loadConfig reads the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("config", path).Str("accounts", cfg.Accounts.Source).Msg("Configuration loaded")
	return cfg, nil
}

// runContext returns a context carrying a logger tagged with a fresh run id.
func runContext(parent context.Context) context.Context {
	logger := log.With().Str("run_id", uuid.NewString()[:8]).Logger()
	return logger.WithContext(parent)
}
