package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newServerKeysCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server-keys",
		Short: "Manage keys clients present to the proxy",
	}

	generateCmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Generate a new server key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			k, err := a.serverKeys.Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Generated key %q (id %s)\n", k.Name, k.ID)
			fmt.Println(k.Key)
			fmt.Println("Store this key now; it is shown in full only once.")
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List server keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.serverKeys.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No server keys.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKEY\tCREATED")
			for _, k := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					k.ID, k.Name, k.Snippet(), k.CreatedAt.Local().Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a server key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.serverKeys.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Key renamed.")
			return nil
		},
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a server key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.serverKeys.Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no server key with id %s", args[0])
			}
			fmt.Println("Key revoked.")
			return nil
		},
	}

	cmd.AddCommand(generateCmd, listCmd, renameCmd, revokeCmd)
	return cmd
}
