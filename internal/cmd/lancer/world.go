package lancer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

func newWorldCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Load world documents",
	}

	var collection string
	importCmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import documents from a JSON lines export",
		Long: `Store each line of the file as a document. Lines are JSON objects with _id,
kind, type, name and data; items, tokens and effects are optional. Existing
documents with the same id are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocumentsFile(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(store *sqlite.Store) error {
				for _, doc := range docs {
					if err := store.PutDocument(cmd.Context(), collection, doc); err != nil {
						return fmt.Errorf("import %s %s: %w", doc.Kind, doc.ID, err)
					}
				}
				fmt.Fprintf(a.out, "imported %d document(s) into %s\n", len(docs), collection)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&collection, "collection", document.WorldCollection, "Target collection")
	cmd.AddCommand(importCmd)
	return cmd
}
