package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gridnerd/internal/agent"
	"gridnerd/internal/config"
	"gridnerd/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	workbookPath string
	verbose      bool
	timeout      time.Duration
	jsonOutput   bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gridnerd",
	Short: "gridNERD - AI spreadsheet automation agent",
	Long: `gridNERD answers spreadsheet questions and carries out spreadsheet tasks.

Requests are planned by an AI service, the plan is parsed into spreadsheet
commands, and the commands are executed against the workbook one at a time.
Every command reports its own outcome; one failure never stops the rest.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if workbookPath != "" {
			loaded.Workbook.Path = workbookPath
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		// The chat UI owns the terminal; log only when a file is configured.
		if isInteractive(cmd) && cfg.Logging.File == "" {
			return nil
		}
		return setupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&workbookPath, "workbook", "w", "", "Workbook path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(runCmd, askCmd, execCmd, extractCmd, connectCmd, healthCmd)
	rootCmd.AddCommand(serveCmd, mcpCmd, configCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// isInteractive matches by name: comparing against rootCmd here would be an
// initialization cycle.
func isInteractive(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "chat"
}

func setupLogging() error {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Initialize(logging.Options{
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		Categories: cfg.Logging.Categories,
	})
}

// commandContext returns a context bounded by --timeout and cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// newAgent wires the agent from the loaded configuration.
func newAgent(ctx context.Context) (*agent.Agent, error) {
	a, err := agent.FromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
