package lancer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/reference"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

func newReferenceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage the core reference data",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Reinstall the bundled core reference data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := reference.Embedded()
			if err != nil {
				return err
			}
			return a.withStore(func(store *sqlite.Store) error {
				r := reference.NewRebuilder(store, ds)
				r.Logger = a.logger
				if err := r.Rebuild(cmd.Context()); err != nil {
					return err
				}
				entries := 0
				for _, pack := range ds.Packs {
					entries += len(pack.Entries)
				}
				fmt.Fprintf(a.out, "installed %s %s: %d pack(s), %d entries\n", ds.Name, ds.Version, len(ds.Packs), entries)
				return nil
			})
		},
	})
	return cmd
}
