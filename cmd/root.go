// Package cmd implements the otus-tap CLI using cobra: a daemon command
// that runs the tap in the foreground, and a set of thin commands
// (status, stats, reload, stop) that talk to a running daemon over its
// Unix-domain-socket control channel.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:   "otus-tap",
	Short: "Passive network tap agent",
	Long: `otus-tap is a passive network tap agent.

It observes Ethernet, ARP, TCP, DNS, and 802.11 traffic handed to it by an
upstream capture pipeline, maintains in-memory protocol tables, and reports
periodic summaries to a leader service over HTTPS.

Local control (status, stats, reload, stop) goes over a Unix domain socket;
nothing about the tap's own operation is controllable remotely. When
enabled, a read-only Prometheus metrics endpoint is served over HTTP.`,
	Version: "0.1.0",
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/otus-tap/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/otus-tap.sock",
		"control socket path")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(validateCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
