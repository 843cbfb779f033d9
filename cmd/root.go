// Package cmd implements the CLI surface of the exporter.
package cmd

import (
	"errors"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

// Stable exit codes.
const (
	ExitOK             = 0
	ExitContentFailure = 1
	ExitInvalidUsage   = 2
	ExitInterrupted    = 3
	ExitResumeRequired = 4
	ExitValidation     = 5
)

// exitError carries a stable exit code through cobra's error return.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func exitWith(code int, message string) error {
	return &exitError{code: code, message: message}
}

// ExitCode maps an error returned by Execute to a process exit code. Plain
// errors (flag parsing, unknown commands) count as invalid usage.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return ExitInvalidUsage
}

var (
	flagLogLevel string
	flagConfig   string
	flagEnvFile  string
)

var rootCmd = &cobra.Command{
	Use:           "confluence-space-export",
	Short:         "Export a Confluence space to a local Markdown tree",
	Long:          "Exports a Confluence space (or a page subtree) as a hierarchy-preserving tree of Markdown files with attachments, a manifest, and resumable state.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: error, warn, info, or debug")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "path to a .env file with credentials")
}

// Execute runs the CLI and returns the error to map to an exit code.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(level string) log.Logger {
	parsed := log.InfoLevel
	switch level {
	case "error":
		parsed = log.ErrorLevel
	case "warn":
		parsed = log.WarnLevel
	case "info":
		parsed = log.InfoLevel
	case "debug":
		parsed = log.DebugLevel
	}
	return log.Logger{
		Level:  parsed,
		Writer: &log.ConsoleWriter{ColorOutput: false},
	}
}
