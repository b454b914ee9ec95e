// riskwatch: keyword news risk monitor.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/riskwatch/api"
	"github.com/seenimoa/riskwatch/internal/collector"
	"github.com/seenimoa/riskwatch/internal/config"
	"github.com/seenimoa/riskwatch/internal/logging"
	"github.com/seenimoa/riskwatch/internal/report"
	"github.com/seenimoa/riskwatch/internal/severity"
	"github.com/seenimoa/riskwatch/internal/source"
	"github.com/seenimoa/riskwatch/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command.
var (
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "riskwatch",
	Short: "riskwatch: keyword news risk monitor",
	Long: `riskwatch collects the latest news for a fixed set of risk keywords,
tags every headline RED, AMBER or GREEN, and writes a self-contained
HTML dashboard with the dataset embedded.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/riskwatch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// applyStrategy overrides the configured source strategy and re-validates.
func applyStrategy(cmd *cobra.Command) error {
	if s, _ := cmd.Flags().GetString("strategy"); s != "" {
		cfg.Source.Strategy = strings.ToLower(s)
	}
	return cfg.Validate()
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "riskwatch %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, classify and write the dashboard",
	Long: `Queries every configured keyword, classifies the headlines and writes
the dashboard atomically. When every source fails a single RED
placeholder entry is written instead of an empty page.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyStrategy(cmd); err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.Report.Output
		}
		quiet, _ := cmd.Flags().GetBool("quiet")

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		agg, err := collector.New(cfg, logger)
		if err != nil {
			return err
		}
		res, err := agg.Run(ctx, cfg.Keywords)
		if err != nil {
			return err
		}

		loc := utils.LoadLocation(cfg.Timezone)
		page, err := report.Generate(res, report.Options{Title: cfg.Report.Title, Location: loc})
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		if err := report.WriteFile(output, page); err != nil {
			return err
		}
		logger.Info("report written",
			zap.String("run_id", res.RunID),
			zap.String("path", output),
			zap.Int("bytes", len(page)),
			zap.Bool("fallback", res.Fallback))

		if !quiet {
			report.WriteSummary(cmd.OutOrStdout(), res, loc)
			fmt.Fprintf(cmd.OutOrStdout(), "  → %s\n", output)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "output path (default: report.output)")
	runCmd.Flags().String("strategy", "", "source strategy override ("+strings.Join(source.Strategies(), ", ")+")")
	runCmd.Flags().BoolP("quiet", "q", false, "do not print the run summary")
}

// --- Serve Command (preview server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP preview server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyStrategy(cmd); err != nil {
			return err
		}
		agg, err := collector.New(cfg, logger)
		if err != nil {
			return err
		}

		srv := api.NewServer(cfg, agg, logger)
		srv.SetVersion(version)

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = srv.Addr()
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "🌐 riskwatch preview on http://%s/\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: api.host:api.port)")
	serveCmd.Flags().String("strategy", "", "source strategy override ("+strings.Join(source.Strategies(), ", ")+")")
}

// --- Classify Command ---

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify a headline with the configured trigger lists",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if strings.TrimSpace(text) == "" {
			return errors.New("text is empty")
		}
		c := severity.FromLists(cfg.Severity.Red, cfg.Severity.Amber)
		tier, trigger := c.Match(text)
		if trigger == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tier)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (trigger: %s)\n", tier, trigger)
		return nil
	},
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %v\n", err)
		}
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
