package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/cachegate/pkg/models"
)

func newModelsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the model catalog",
	}

	addCmd := &cobra.Command{
		Use:   "add <service> <name>",
		Short: "Add a model name for a service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.models.Add(cmd.Context(), args[1], models.Service(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("Added model %s (id %s)\n", m.Name, m.ID)
			return nil
		},
	}

	var service string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var list []models.ModelRecord
			if service != "" {
				list, err = a.models.ForService(cmd.Context(), models.Service(service))
			} else {
				list, err = a.models.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No models.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSERVICE\tNAME")
			for _, m := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Service, m.Name)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&service, "service", "", "only list models for this service")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a catalog model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.models.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no model with id %s", args[0])
			}
			fmt.Println("Model deleted.")
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, deleteCmd)
	return cmd
}
