package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mlopez/jobquest/providers"
)

func newProvidersCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers and how to enable the missing ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.setup()
			if err != nil {
				return err
			}
			available := providers.Available(cfg)

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tSTATUS\tENABLE WITH")
			for _, name := range providers.DefaultFallbackOrder {
				status := "missing credential"
				enable := providers.CredentialVars[name]
				if lo.Contains(available, name) {
					status = "available"
					enable = ""
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, status, enable)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\nPrimary: %s\n", cfg.Provider)
			return nil
		},
	}
}
