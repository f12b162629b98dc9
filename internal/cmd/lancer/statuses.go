package lancer

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/platform/config"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/effects"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

// statusCollections hold the status items merged into the palette.
var statusCollections = []string{
	document.WorldCollection,
	document.Compendium{ID: document.CompendiumID("Status/Condition"), Package: document.WorldPackage}.Collection(),
}

func newStatusesCommand(a *app) *cobra.Command {
	var iconSets string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "Print the token status palette",
		Long: `Build the status palette from the enabled icon sets and backfill it from the
status items stored in the world and its status compendium.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enabled := a.cfg.StatusIconSets
			if cmd.Flags().Changed("icon-sets") {
				enabled = config.SplitCSV(iconSets)
			}
			statuses, err := effects.Configure(enabled)
			if err != nil {
				return err
			}
			err = a.withStore(func(store *sqlite.Store) error {
				var items []document.Document
				for _, collection := range statusCollections {
					docs, err := store.ListDocuments(cmd.Context(), collection, document.KindItem)
					if err != nil {
						return fmt.Errorf("list %s items: %w", collection, err)
					}
					items = append(items, docs...)
				}
				statuses = effects.PopulateFromItems(statuses, items)
				return nil
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, statuses)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tICON")
			for _, s := range statuses {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Name, s.Icon)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&iconSets, "icon-sets", "", "Comma-separated icon sets (overrides LANCER_STATUS_ICON_SETS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the palette as JSON")
	return cmd
}
