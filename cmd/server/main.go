package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gapminder/internal/config"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger

	// Flag values; applied over the loaded config only when set.
	flagData    string
	flagAddr    string
	flagNATS    string
	flagVariant string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gapminder",
	Short: "Interactive explorer for the gapminder dataset",
	Long: `gapminder serves a two-tab explorer over the gapminder CSV: a scatter of
two indicators for one year, and population over time for chosen countries.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("data") {
			c.DataPath = flagData
		}
		if flags.Changed("addr") {
			c.HTTPAddr = flagAddr
		}
		if flags.Changed("nats") {
			c.NATSURL = flagNATS
		}
		if flags.Changed("variant") {
			c.Variant = flagVariant
		}
		if flags.Changed("verbose") {
			c.Verbose = flagVerbose
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = c

		zc := zap.NewProductionConfig()
		if cfg.Verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", os.Getenv("GAPMINDER_CONFIG"), "YAML config file")
	pf.StringVar(&flagData, "data", "", "gapminder CSV file")
	pf.StringVar(&flagAddr, "addr", "", "HTTP listen address")
	pf.StringVar(&flagNATS, "nats", "", "NATS URL for publishing view updates")
	pf.StringVar(&flagVariant, "variant", "", "scatter layout: single or regions")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
