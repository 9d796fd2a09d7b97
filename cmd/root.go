// Package cmd is the daemon's CLI surface: one cobra root command with
// PersistentFlags and a single Execute() entry point. This daemon
// exposes no REST-client subcommands - its only job is to start and
// configure the daemon process itself.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/senses3/coolercontrol/internal/buildinfo"
)

const (
	defaultConfigPath = "/etc/coolercontrol/config.toml"
	defaultLogLevel   = "info"
)

var flags struct {
	configPath       string
	logLevel         string
	port             int
	host             string
	noInit           bool
	disableNvidia    bool
	disableLiquidctl bool
	disableThinkpad  bool
}

var rootCmd = &cobra.Command{
	Use:   "coolercontrold",
	Short: "A daemon for monitoring and controlling computer cooling devices.",
	Long: `coolercontrold samples temperature/fan/pump sensors across CPU, GPU,
liquidctl, hwmon, and ThinkPad ACPI hardware, drives fan curves defined
as Profiles, and serves the result over a local HTTP/SSE API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

func init() {
	rootCmd.Version = buildinfo.Get().String()

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&flags.port, "port", 0, "HTTP API port (overrides CC_PORT, 0 = use default)")
	rootCmd.PersistentFlags().StringVar(&flags.host, "host", "", "HTTP API bind address (overrides CC_HOST_IP4)")
	rootCmd.PersistentFlags().BoolVar(&flags.noInit, "no-init", false, "skip applying persisted channel settings on boot")
	rootCmd.PersistentFlags().BoolVar(&flags.disableNvidia, "disable-nvidia", false, "disable the NVIDIA GPU repository")
	rootCmd.PersistentFlags().BoolVar(&flags.disableLiquidctl, "disable-liquidctl", false, "disable the liquidctl repository")
	rootCmd.PersistentFlags().BoolVar(&flags.disableThinkpad, "disable-thinkpad", false, "disable the ThinkPad ACPI repository")
}

// Execute runs the root command. Called once from main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
