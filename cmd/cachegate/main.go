package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "cachegate",
		Short:         "cachegate: caching proxy for Ollama and Google Gemini",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults apply when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newCacheCmd(&configPath),
		newKeysCmd(&configPath),
		newServerKeysCmd(&configPath),
		newModelsCmd(&configPath),
		newSettingsCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
