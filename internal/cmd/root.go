// Package cmd provides the CLI commands for mcproxy.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/mcproxy/internal/appdir"
	"github.com/inercia/mcproxy/internal/config"
	"github.com/inercia/mcproxy/internal/logging"
)

var (
	// Global flags
	configPath    string
	debug         bool
	logLevel      string
	logFile       string
	logComponents string
	logJSON       bool

	// children holds the loaded child configurations, populated by
	// PersistentPreRunE from --config.
	children []config.ChildConfig
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcproxy",
	Short: "mcproxy - bridge stdio MCP servers onto HTTP/SSE",
	Long: `mcproxy runs one or more MCP (Model Context Protocol) child
processes and exposes each one over HTTP, SSE, and streamable-HTTP so
network clients can talk JSON-RPC to a stdio-only server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		effectiveLogLevel := "info"
		if logLevel != "" {
			effectiveLogLevel = logLevel
		} else if debug {
			effectiveLogLevel = "debug"
		}
		var components []string
		if logComponents != "" {
			for _, c := range strings.Split(logComponents, ",") {
				c = strings.TrimSpace(c)
				if c != "" {
					components = append(components, c)
				}
			}
		}
		if err := logging.Initialize(logging.Config{
			Level:      effectiveLogLevel,
			LogFile:    logFile,
			JSON:       logJSON,
			Components: components,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create mcproxy directory: %w", err)
		}

		if configPath == "" {
			return nil
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
		children = loaded
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Child config file path (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g. 'bridge,router'). Empty means all.")
}

// requireConfig returns the loaded child list, failing if --config wasn't
// given.
func requireConfig() ([]config.ChildConfig, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return children, nil
}
