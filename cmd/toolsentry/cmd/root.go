// Package cmd provides the CLI commands for toolsentry.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolsentry/toolsentry/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toolsentry",
	Short: "toolsentry - policy gateway for AI coding-agent tool calls",
	Long: `toolsentry evaluates AI coding-agent tool calls (shell commands, file
edits, MCP tool invocations) against a configurable set of security rules
and returns an allow/deny decision, optionally backed by an LLM sampling
call for rules that need judgment rather than a fixed pattern match.

Quick start:
  1. Create a rule file: rules.yaml
  2. Run: toolsentry run

Configuration:
  Config is loaded from toolsentry.yaml in the current directory,
  $HOME/.toolsentry/, or /etc/toolsentry/.

  Environment variables can override config values with the TOOLSENTRY_
  prefix. Example: TOOLSENTRY_SERVER_HTTP_ADDR=:9090

Commands:
  run          Start the HTTP and MCP stdio evaluation servers
  advise       Evaluate a single tool request read from stdin and exit
  claude-hook  Internal: Claude Code PreToolUse hook handler
  version      Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./toolsentry.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
