package lancer

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/migration"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

func newCompendiumCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compendium",
		Short: "Inspect and reset compendium packs",
	}
	cmd.AddCommand(newCompendiumListCommand(a), newCompendiumResetCommand(a))
	return cmd
}

func newCompendiumListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List compendium packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store *sqlite.Store) error {
				comps, err := store.ListCompendiums(cmd.Context())
				if err != nil {
					return fmt.Errorf("list compendiums: %w", err)
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "COLLECTION\tLABEL\tKIND\tLOCKED")
				for _, comp := range comps {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", comp.Collection(), comp.Label, comp.Kind, comp.Locked)
				}
				return tw.Flush()
			})
		},
	}
}

func newCompendiumResetCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete legacy packs and create the current reference packs",
		Long: `Delete the world-owned packs left by older system versions and create any
missing reference pack. The core data version is reset, so the reference data
must be rebuilt afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store *sqlite.Store) error {
				m, err := a.migrator(store)
				if err != nil {
					return err
				}
				report, err := m.ResetCompendiums(cmd.Context(), migration.DefaultLegacyCompendiums(), migration.DefaultCompendiumSpecs())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(a.out, report)
				}
				fmt.Fprintf(a.out, "deleted %d, created %d, skipped %d\n", len(report.Deleted), len(report.Created), len(report.Skipped))
				for _, warning := range report.Warnings {
					fmt.Fprintf(a.out, "  warning: %s\n", warning)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reset report as JSON")
	return cmd
}
