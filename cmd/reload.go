package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/otus-tap/agent/internal/command"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the tap daemon configuration",
	Long: `Send a reload command to the running tap daemon over its control
socket. The daemon re-reads its configuration file and applies the
leader link and table tuning; the bus topology is fixed at process
start and is unaffected.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)
		if err := runReload(context.Background(), client, os.Stdout); err != nil {
			exitWithError(err.Error(), nil)
		}
	},
}

// reloadClient is the subset of *command.UDSClient runReload depends on,
// so it can be driven by a fake in tests without a real socket.
type reloadClient interface {
	Reload(ctx context.Context) (*command.Response, error)
}

func runReload(ctx context.Context, client reloadClient, out io.Writer) error {
	resp, err := client.Reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("failed to reload: %s", resp.Error.Message)
	}

	fmt.Fprintln(out, "Configuration reloaded successfully.")
	return nil
}
