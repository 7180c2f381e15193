// Command otus-tap is the entry point for the passive network tap agent.
package main

import (
	"fmt"
	"os"

	"github.com/otus-tap/agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
