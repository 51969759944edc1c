package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "identityd",
		Short: "identityd verifies provider sessions and owns local accounts",
		Long: `identityd verifies bearer tokens issued by the external identity
provider, provisions a local account on first login, and keeps accounts in
sync with the provider's signed lifecycle webhooks.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Version:      version,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML or JSON config file (environment variables override it)")

	cmd.AddCommand(newServeCmd(opts), newMigrateCmd(opts))
	return cmd
}
