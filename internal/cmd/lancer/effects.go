package lancer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/effects"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

func newEffectsCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "effects <actor-id>",
		Short: "List an actor's active effects by category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Store) error {
				actor, err := store.GetDocument(cmd.Context(), document.WorldCollection, document.KindActor, args[0])
				if err != nil {
					return fmt.Errorf("get actor %s: %w", args[0], err)
				}
				categories, err := effects.Categorize(actor, a.localizer())
				if err != nil {
					return fmt.Errorf("categorize effects of %s: %w", actor.ID, err)
				}
				if asJSON {
					return writeJSON(a.out, categories)
				}
				for _, category := range categories {
					fmt.Fprintf(a.out, "%s (%d)\n", category.Label, len(category.Effects))
					for _, e := range category.Effects {
						fmt.Fprintf(a.out, "  [%d] %s\n", e.Index, e.Effect.Name)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the categories as JSON")
	return cmd
}
