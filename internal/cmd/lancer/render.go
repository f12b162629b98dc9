package lancer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/render"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

func newRenderCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render documents as HTML fragments",
	}

	var tier int
	var actorID string
	featureCmd := &cobra.Command{
		Use:   "feature <item-id>",
		Short: "Render an NPC feature card",
		Long: `Render the card of an NPC feature. With --actor the feature is looked up
among the actor's items and the actor's stats complete missing values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Store) error {
				ctx := cmd.Context()
				var feature document.Document
				var actor *document.Document
				if actorID != "" {
					owner, err := store.GetDocument(ctx, document.WorldCollection, document.KindActor, actorID)
					if err != nil {
						return fmt.Errorf("get actor %s: %w", actorID, err)
					}
					item, ok := owner.Item(args[0])
					if !ok {
						return fmt.Errorf("actor %s has no item %s", actorID, args[0])
					}
					feature, actor = item, &owner
				} else {
					item, err := store.GetDocument(ctx, document.WorldCollection, document.KindItem, args[0])
					if err != nil {
						return fmt.Errorf("get item %s: %w", args[0], err)
					}
					feature = item
				}
				r := render.Renderer{Labels: render.NewLabels(a.cfg.Locale)}
				if err := r.FeatureCard(feature, tier, actor).Render(ctx, a.out); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out)
				return err
			})
		},
	}
	featureCmd.Flags().IntVar(&tier, "tier", 1, "NPC tier (1-3)")
	featureCmd.Flags().StringVar(&actorID, "actor", "", "Owning NPC actor id")
	cmd.AddCommand(featureCmd)
	return cmd
}
