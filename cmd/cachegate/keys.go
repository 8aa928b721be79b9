package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/cachegate/pkg/models"
)

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func newKeysCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage upstream AI provider keys",
	}

	addCmd := &cobra.Command{
		Use:   "add <service> <secret>",
		Short: "Store a provider key (service: ollama | google-gemini)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			k, err := a.providerKeys.Add(cmd.Context(), models.Service(args[0]), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Added %s key %s\n", k.Service, k.ID)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List provider keys, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.providerKeys.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No provider keys.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSERVICE\tKEY\tCREATED")
			for _, k := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					k.ID, k.Service, maskSecret(k.Key), k.CreatedAt.Local().Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <id> <secret>",
		Short: "Replace the secret of a provider key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.providerKeys.Update(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Key updated.")
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a provider key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.providerKeys.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no provider key with id %s", args[0])
			}
			fmt.Println("Key deleted.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which services have a key configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			coverage, err := a.providerKeys.Coverage(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tCONFIGURED")
			for _, s := range models.Services {
				fmt.Fprintf(w, "%s\t%t\n", s, coverage[s])
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if a.cfg.Classifier.APIKey == "" && !coverage[models.ServiceGoogleGemini] {
				fmt.Println("No Google Gemini key: ollama responses will not be cached.")
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, updateCmd, deleteCmd, statusCmd)
	return cmd
}
