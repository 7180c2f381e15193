package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otus-tap/agent/internal/command"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tap daemon",
	Long: `Send a graceful shutdown request to the running tap daemon over
its control socket. The daemon cancels its workers, shuts down its
metrics server and control socket, closes the message bus, and exits; no
final report is sent to the leader.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
	}

	resp, err := client.Stop(ctx)
	if err != nil {
		exitWithError("failed to send stop command", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("stop failed: %s", resp.Error.Message), nil)
	}

	fmt.Println("Stop requested; daemon is shutting down.")
}
