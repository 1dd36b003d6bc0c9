package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "plotctl",
		Short:         "Operate and query a plotmanager deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  plotctl migrate up
  plotctl admin create --username root --email root@example.com --password s3cret --first-name Root --last-name Admin
  plotctl auth login --username alice --password secret1
  plotctl plots mine`,
	}

	root.PersistentFlags().String("api", "", "API base URL (default $PLOTCTL_API or http://localhost:8080/api)")

	root.AddCommand(newMigrateCmd(), newAdminCmd(), newAuthCmd(), newPlotsCmd())
	return root
}
