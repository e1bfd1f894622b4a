package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"ReviewInsights/internal/app"
	"ReviewInsights/internal/config"
	"ReviewInsights/internal/logging"
	"ReviewInsights/pkg/logger"
)

var (
	configPath string
	logLevel   string
	noProgress bool
	locator    string
)

var rootCmd = &cobra.Command{
	Use:   "reviewinsights",
	Short: "Analyze product reviews into pros, cons and sentiment counts",
	Long: `reviewinsights scrapes the reviews behind a product URL, classifies their sentiment
and asks a language model for pros, cons and a short summary.

Examples:
  reviewinsights serve                                # stream analyses over HTTP
  reviewinsights analyze https://www.amazon.com/dp/X  # one-shot analysis with a progress bar`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Exported so the extraction worker child sees the same settings.
		if configPath != "" {
			if err := os.Setenv(config.PathEnv, configPath); err != nil {
				return errors.Wrap(err, "export config path")
			}
		}
		if logLevel != "" {
			if err := os.Setenv(config.LogLevelEnv, logLevel); err != nil {
				return errors.Wrap(err, "export log level")
			}
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streaming analysis server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Logging.Level)
		defer func() { _ = log.Sync() }()

		application, err := app.New(ctx, cfg, log)
		if err != nil {
			return errors.Wrap(err, "build application")
		}
		return application.Serve(ctx)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze one product and print the insight as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.NewWithWriter(os.Stderr, cfg.Logging.Level)
		defer func() { _ = log.Sync() }()

		application, err := app.New(ctx, cfg, log)
		if err != nil {
			return errors.Wrap(err, "build application")
		}

		onProgress := func(int) {}
		if !noProgress {
			bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle("Classifying reviews").Start()
			if err == nil {
				defer func() { _, _ = bar.Stop() }()
				onProgress = func(p int) {
					if delta := p - bar.Current; delta > 0 {
						bar.Add(delta)
					}
				}
			}
		}

		rec, err := application.Pipeline().Analyze(ctx, args[0], onProgress)
		if err != nil {
			return errors.Wrap(err, "analysis failed")
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode insight")
		}
		fmt.Println(string(out))

		if rec.Failed() {
			pterm.Warning.Println(rec.Error)
		}
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:    app.WorkerCommand,
	Short:  "Run one extraction and write the result envelope to stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.New("extract-worker", cfg.Logging.Level)
		defer func() { _ = log.Sync() }()

		log.Infow("extraction started", "locator", locator)
		return app.RunWorker(cmd.Context(), cfg, locator, os.Stdout, log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML or TOML config file (env "+config.PathEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug")

	analyzeCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw the progress bar")

	workerCmd.Flags().StringVar(&locator, "locator", "", "product URL to scrape")
	_ = workerCmd.MarkFlagRequired("locator")

	rootCmd.AddCommand(serveCmd, analyzeCmd, workerCmd)
}

func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		// stderr: a failing extract-worker has already written its envelope to stdout.
		pterm.Error.WithWriter(os.Stderr).Println(err)
		if hint := errors.FlattenHints(err); hint != "" {
			pterm.Info.WithWriter(os.Stderr).Println(hint)
		}
		os.Exit(1)
	}
}
