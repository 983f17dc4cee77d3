package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/af-corp/dentassist/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}

	var (
		env   string
		name  string
		admin bool
	)
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a bearer token and the auth entry to add to gateway.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateKey(env)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Token (save this, it will NOT be shown again):")
			fmt.Fprintf(out, "  %s\n\n", key)
			fmt.Fprintln(out, "Add to the auth.keys section of gateway.yaml:")
			fmt.Fprintf(out, "  - name: %q\n    hash: %q\n    admin: %v\n", name, auth.HashKey(key), admin)
			fmt.Fprintf(out, "\nPrefix for logs: %s\n", auth.KeyPrefix(key))
			return nil
		},
	}
	generateCmd.Flags().StringVar(&env, "env", "prod", "environment segment of the token")
	generateCmd.Flags().StringVar(&name, "name", "frontend", "human-friendly key name")
	generateCmd.Flags().BoolVar(&admin, "admin", false, "allow admin routes such as DELETE /cache/clear")

	cmd.AddCommand(generateCmd)
	return cmd
}
