package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/cachegate/pkg/models"
)

func newSettingsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Export, import or clear keys and models",
	}

	var output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write keys and models as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			bundle, err := a.settings.Export(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o600)
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")

	var policy string
	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Merge keys and models from an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.settings.Import(cmd.Context(), data, models.ConflictPolicy(policy))
			if err != nil {
				return err
			}
			fmt.Printf("AI keys:     %d added, %d updated, %d conflicts\n",
				report.ProviderKeys.Added, report.ProviderKeys.Updated, report.ProviderKeys.Conflicts)
			fmt.Printf("Server keys: %d added, %d updated, %d conflicts\n",
				report.ServerKeys.Added, report.ServerKeys.Updated, report.ServerKeys.Conflicts)
			fmt.Printf("Models:      %d added, %d updated, %d conflicts\n",
				report.Models.Added, report.Models.Updated, report.Models.Conflicts)
			return nil
		},
	}
	importCmd.Flags().StringVar(&policy, "policy", string(models.ConflictKeep), "conflict policy: keep | overwrite")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all keys and models (the cache is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear settings without --yes")
			}
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.settings.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Settings cleared.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing every key and model")

	cmd.AddCommand(exportCmd, importCmd, clearCmd)
	return cmd
}
