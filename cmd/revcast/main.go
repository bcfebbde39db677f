// revcast is the FreelanceFlow revenue forecasting service.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const version = "1.2.0"

var (
	configPath string
	logLevel   string
)

// rootCmd is the base command for the revcast CLI
var rootCmd = &cobra.Command{
	Use:   "revcast",
	Short: "FreelanceFlow revenue forecasting service",
	Long: `revcast aggregates paid invoices into monthly revenue series, fits
polynomial trend models, and serves forecasts to the FreelanceFlow dashboard
over REST and WebSocket.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd.Flags())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the revcast version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("revcast %s\n", version)
	},
}

func init() {
	addCommonFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(versionCmd)
}

// addCommonFlags registers the flags every subcommand shares
func addCommonFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&configPath, "config", "c", "", "Path to revcast.yaml (defaults used when omitted)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
}

// setupLogging configures zerolog. Human-readable console output on a TTY,
// structured JSON otherwise.
func setupLogging(flags *pflag.FlagSet) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if flags.Changed("log-level") {
		applyLogLevel(logLevel)
	}
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
