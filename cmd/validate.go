package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otus-tap/agent/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file, then print the effective
configuration (defaults applied, secrets redacted) as YAML. Exits
non-zero if the file cannot be loaded or fails validation.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			exitWithError(err.Error(), nil)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if cfg.General.LeaderSecret != "" {
		cfg.General.LeaderSecret = "<redacted>"
	}

	rendered, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not render configuration: %w", err)
	}

	fmt.Fprintf(out, "Configuration OK: %s\n---\n%s", path, rendered)
	return nil
}
