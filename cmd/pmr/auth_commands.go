package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func createAuthCommand(g *GlobalFlags, f *AuthFlags) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage control plane API tokens",
	}
	authCmd.AddCommand(
		createAuthGenerateCommand(g, f),
		createAuthListCommand(g),
		createAuthRevokeCommand(g),
	)
	return authCmd
}

func createAuthGenerateCommand(g *GlobalFlags, f *AuthFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <label>",
		Short: "Mint a new API token (the raw token is shown only once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			expirySet := cmd.Flags().Changed("expires-in")
			tok, err := sup.Auth().Mint(context.Background(), args[0], f.ExpiresIn, expirySet)
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(tok)
				return nil
			}
			fmt.Printf("Token generated for '%s':\n", tok.Label)
			fmt.Println(tok.Token)
			if tok.ExpiresAt != nil {
				fmt.Printf("Expires: %s\n", tok.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			}
			fmt.Println("Store it now; it cannot be shown again.")
			return nil
		},
	}
	cmd.Flags().IntVar(&f.ExpiresIn, "expires-in", 0, "expiry in days (omit for no expiry)")
	return cmd
}

func createAuthListCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List token metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			toks, err := sup.Auth().List(context.Background())
			if err != nil {
				return err
			}
			if g.Format == "json" {
				printJSON(toks)
				return nil
			}
			if len(toks) == 0 {
				fmt.Println("No tokens")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tCREATED\tEXPIRES")
			for _, tok := range toks {
				expires := "never"
				if tok.ExpiresAt != nil {
					expires = tok.ExpiresAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tok.ID, tok.Label, tok.CreatedAt.Format("2006-01-02 15:04"), expires)
			}
			return w.Flush()
		},
	}
}

func createAuthRevokeCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := openSupervisor(g)
			if err != nil {
				return err
			}
			defer func() { _ = sup.Close() }()

			if err := sup.Auth().Revoke(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("Token revoked")
			return nil
		},
	}
}
