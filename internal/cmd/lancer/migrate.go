package lancer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/migration"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

// Migration modes accepted by --mode.
const (
	modeAuto  = "auto"
	modeMajor = "major"
	modeMinor = "minor"
)

func newMigrateCommand(a *app) *cobra.Command {
	var mode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate world documents to the running system version",
		Long: `Compare the stored migration version with the running system version and
migrate the world.

Modes:
  auto   pick the tier owed by the stored version (default)
  major  reset reference compendiums and reshape every document
  minor  apply field renames only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store *sqlite.Store) error {
				m, err := a.migrator(store)
				if err != nil {
					return err
				}
				report, err := runMigration(cmd.Context(), m, mode)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(a.out, report)
				}
				printReport(a.out, report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", modeAuto, "Migration tier: auto, major or minor")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run report as JSON")
	cmd.AddCommand(newMigratePilotsCommand(a))
	return cmd
}

func runMigration(ctx context.Context, m *migration.Migrator, mode string) (migration.Report, error) {
	switch mode {
	case modeAuto, "":
		return m.Run(ctx)
	case modeMajor:
		return m.MigrateWorld(ctx)
	case modeMinor:
		return m.MigrateMinor(ctx)
	default:
		return migration.Report{}, fmt.Errorf("unknown migration mode %q", mode)
	}
}

func printReport(w io.Writer, report migration.Report) {
	fmt.Fprintf(w, "run %s: %s (%s -> %s)\n", report.RunID, report.Outcome, displayVersion(report.FromVersion), report.ToVersion)
	for _, row := range []struct {
		name   string
		counts migration.Counts
	}{
		{"actors", report.Actors},
		{"items", report.Items},
		{"scenes", report.Scenes},
		{"tokens", report.Tokens},
		{"compendiums", report.Compendiums},
	} {
		c := row.counts
		if c == (migration.Counts{}) {
			continue
		}
		fmt.Fprintf(w, "  %-12s migrated=%d unchanged=%d failed=%d\n", row.name, c.Migrated, c.Unchanged, c.Failed)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

func displayVersion(v string) string {
	if v == "" {
		return "none"
	}
	return v
}

func newMigratePilotsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pilots <source.jsonl>",
		Short: "Re-import world pilots from their source records",
		Long: `Replace every world pilot with the record of the same id in a JSON lines
file. Run after a major migration has rebuilt the reference data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := readDocumentsFile(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(store *sqlite.Store) error {
				m, err := a.migrator(store)
				if err != nil {
					return err
				}
				importer := &sourceImporter{store: store, sources: map[string]document.Document{}}
				for _, doc := range sources {
					importer.sources[doc.ID] = doc
				}
				imported, err := m.MigratePilots(cmd.Context(), importer)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "imported %d pilot(s)\n", imported)
				return nil
			})
		},
	}
}

// sourceImporter replaces pilots with source records keyed by id.
type sourceImporter struct {
	store   storage.DocumentStore
	sources map[string]document.Document
}

func (i *sourceImporter) ImportPilot(ctx context.Context, pilot document.Document) error {
	source, ok := i.sources[pilot.ID]
	if !ok {
		return fmt.Errorf("pilot %s: no source record", pilot.ID)
	}
	if source.Kind != document.KindActor || source.Type != document.TypePilot {
		return fmt.Errorf("pilot %s: source record is %s/%s", pilot.ID, source.Kind, source.Type)
	}
	if err := i.store.PutDocument(ctx, document.WorldCollection, source); err != nil {
		return fmt.Errorf("put pilot %s: %w", pilot.ID, err)
	}
	return nil
}

// readDocumentsFile reads one JSON document per line. Blank lines are
// skipped.
func readDocumentsFile(path string) ([]document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var docs []document.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var doc document.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%s:%d: decode document: %w", path, line, err)
		}
		if doc.ID == "" || !doc.Kind.Valid() {
			return nil, fmt.Errorf("%s:%d: document needs an _id and a valid kind", path, line)
		}
		if doc.Data == nil {
			doc.Data = document.Fields{}
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return docs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
