package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Session commands against a running server",
	}

	var username, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := newAPIClient(cmd).login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("✗ Login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as: %s (%s)\n", u.Username, u.Role)
			return nil
		},
	}
	login.Flags().StringVar(&username, "username", "", "username")
	login.Flags().StringVar(&password, "password", "", "password")
	_ = login.MarkFlagRequired("username")
	_ = login.MarkFlagRequired("password")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the saved token and remove it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newAPIClient(cmd).logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the principal behind the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := newAPIClient(cmd).me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> role=%s id=%s\n", u.Username, u.Email, u.Role, u.ID)
			return nil
		},
	}

	cmd.AddCommand(login, logout, whoami)
	return cmd
}

func newPlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plots",
		Short: "Plot commands against a running server",
	}

	list := func(all bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			plots, err := newAPIClient(cmd).listPlots(cmd.Context(), all)
			if err != nil {
				return err
			}
			printPlots(cmd.OutOrStdout(), plots)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "mine",
			Short: "List your plots",
			Args:  cobra.NoArgs,
			RunE:  list(false),
		},
		&cobra.Command{
			Use:   "all",
			Short: "List every plot (admin)",
			Args:  cobra.NoArgs,
			RunE:  list(true),
		},
		&cobra.Command{
			Use:   "delete <plot-id>",
			Short: "Soft-delete a plot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := newAPIClient(cmd).deletePlot(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Plot deleted: %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func printPlots(out io.Writer, plots []plotView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCROP\tSTATUS\tAREA\tOWNER")
	for _, p := range plots {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n", p.ID, p.Name, p.CropType, p.Status, p.Area, p.OwnerID)
	}
	w.Flush()
}
