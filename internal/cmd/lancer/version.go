package lancer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/migration"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

func newVersionCommand(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the running and stored system versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.out, "system version: %s\n", a.cfg.SystemVersion)
			if offline {
				return nil
			}
			return a.withStore(func(store *sqlite.Store) error {
				m := migration.New(store, a.cfg.SystemVersion)
				stored, err := m.StoredVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "stored version: %s\n", displayVersion(stored))
				fmt.Fprintf(a.out, "pending migration: %s\n", migration.PlanFor(stored, a.cfg.SystemVersion))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not open the world store")
	return cmd
}
