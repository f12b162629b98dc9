// Package migration upgrades a Lancer world's stored documents to the
// running system version.
package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/lancer-system/internal/platform/errors"
	"github.com/louisbranch/lancer-system/internal/platform/i18n/catalog"
	"github.com/louisbranch/lancer-system/internal/platform/logging"
	platformotel "github.com/louisbranch/lancer-system/internal/platform/otel"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

var tracer = platformotel.Tracer("github.com/louisbranch/lancer-system/internal/systems/lancer/migration")

// ReferenceRebuilder repopulates the reference data compendiums and records
// the core data version it installed.
type ReferenceRebuilder interface {
	Rebuild(ctx context.Context) error
	// Version is the core data version a successful rebuild records.
	Version() string
}

// PilotImporter re-imports a pilot actor from its source data.
type PilotImporter interface {
	ImportPilot(ctx context.Context, pilot document.Document) error
}

// Outcome is the final state of a migration run.
type Outcome string

const (
	// OutcomeUpToDate means no migration was owed.
	OutcomeUpToDate Outcome = "up_to_date"
	// OutcomeStamped means a new world had its version recorded.
	OutcomeStamped Outcome = "stamped"
	// OutcomeMinorCompleted means the minor tier ran.
	OutcomeMinorCompleted Outcome = "minor_completed"
	// OutcomeCompleted means the major tier ran and reference data was
	// rebuilt, so pilots can be migrated.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRebuildFailed means the major tier ran but the reference data
	// is missing; the operator should retry the rebuild before migrating
	// pilots.
	OutcomeRebuildFailed Outcome = "rebuild_failed"
	// OutcomeNeedsReferenceRebuild means the major tier ran without a
	// rebuilder; the reference data must be installed separately.
	OutcomeNeedsReferenceRebuild Outcome = "needs_reference_rebuild"
)

// Counts tallies documents visited in one collection walk.
type Counts struct {
	Migrated  int `json:"migrated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (c *Counts) add(other Counts) {
	c.Migrated += other.Migrated
	c.Unchanged += other.Unchanged
	c.Failed += other.Failed
}

// Report summarizes a migration run.
type Report struct {
	RunID       string      `json:"run_id"`
	Plan        string      `json:"plan"`
	FromVersion string      `json:"from_version"`
	ToVersion   string      `json:"to_version"`
	Outcome     Outcome     `json:"outcome"`
	Actors      Counts      `json:"actors"`
	Items       Counts      `json:"items"`
	Scenes      Counts      `json:"scenes"`
	Tokens      Counts      `json:"tokens"`
	Compendiums Counts      `json:"compendiums"`
	Reset       ResetReport `json:"reset"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Migrator runs world migrations against a store.
type Migrator struct {
	Documents   storage.DocumentStore
	Compendiums storage.CompendiumStore
	Settings    storage.SettingsStore
	Reference   ReferenceRebuilder
	Notifier    Notifier
	Logger      *zap.Logger
	Localizer   *catalog.Localizer
	// Version is the running system version.
	Version string

	// LegacyCompendiums and CompendiumSpecs override the reset tables.
	LegacyCompendiums []string
	CompendiumSpecs   []CompendiumSpec
}

// New returns a migrator backed by store for the running version.
func New(store storage.Store, version string) *Migrator {
	return &Migrator{
		Documents:   store,
		Compendiums: store,
		Settings:    store,
		Version:     version,
	}
}

func (m *Migrator) logger() *zap.Logger {
	return logging.OrNop(m.Logger)
}

func (m *Migrator) notifier() Notifier {
	if m.Notifier == nil {
		return discardNotifier{}
	}
	return m.Notifier
}

func (m *Migrator) localizer() *catalog.Localizer {
	if m.Localizer == nil {
		return catalog.Default().Localizer(catalog.BaseLocale)
	}
	return m.Localizer
}

func (m *Migrator) notify(ctx context.Context, level Level, sticky bool, key, fallback string, args ...any) {
	m.notifier().Notify(ctx, Notice{
		Level:   level,
		Message: m.localizer().Localize(key, fallback, args...),
		Sticky:  sticky,
	})
}

// run carries the per-run logger and report through the collection walks.
type run struct {
	logger *zap.Logger
	report *Report
}

func (m *Migrator) newRun(plan Plan, from string) *run {
	report := &Report{
		RunID:       uuid.NewString(),
		Plan:        plan.String(),
		FromVersion: from,
		ToVersion:   m.Version,
	}
	return &run{
		logger: m.logger().With(zap.String("run_id", report.RunID)),
		report: report,
	}
}

func (r *run) warn(msg string) {
	r.report.Warnings = append(r.report.Warnings, msg)
}

// StoredVersion returns the recorded migration version, or "" for a world
// that never recorded one.
func (m *Migrator) StoredVersion(ctx context.Context) (string, error) {
	stored, err := m.Settings.GetSetting(ctx, storage.SettingMigrationVersion)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read migration version: %w", err)
	}
	return strings.TrimSpace(stored), nil
}

// Run reads the stored version and performs whatever migration it owes.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	if !ValidVersion(m.Version) {
		return Report{}, apperrors.WithMetadata(apperrors.CodeVersionInvalid,
			fmt.Sprintf("invalid system version %q", m.Version), map[string]string{"Version": m.Version})
	}
	stored, err := m.StoredVersion(ctx)
	if err != nil {
		return Report{}, err
	}

	plan := PlanFor(stored, m.Version)
	switch plan {
	case PlanStamp:
		r := m.newRun(plan, stored)
		if err := m.Settings.SetSetting(ctx, storage.SettingMigrationVersion, m.Version); err != nil {
			return *r.report, fmt.Errorf("record migration version: %w", err)
		}
		r.report.Outcome = OutcomeStamped
		r.logger.Info("recorded version for new world", zap.String("version", m.Version))
		m.notify(ctx, LevelInfo, false, "migration.stamped", "New world recorded at system version %s.", m.Version)
		return *r.report, nil
	case PlanMinor:
		return m.migrateMinor(ctx, m.newRun(plan, stored))
	case PlanMajor:
		return m.migrateWorld(ctx, m.newRun(plan, stored))
	default:
		r := m.newRun(plan, stored)
		r.report.Outcome = OutcomeUpToDate
		r.logger.Debug("world is up to date", zap.String("version", stored))
		return *r.report, nil
	}
}

// MigrateWorld runs the major tier: reset and rebuild the reference data,
// reshape every world actor, item and scene, then record the version.
func (m *Migrator) MigrateWorld(ctx context.Context) (Report, error) {
	stored, err := m.StoredVersion(ctx)
	if err != nil {
		return Report{}, err
	}
	return m.migrateWorld(ctx, m.newRun(PlanMajor, stored))
}

func (m *Migrator) migrateWorld(ctx context.Context, r *run) (Report, error) {
	ctx, span := tracer.Start(ctx, "migration.world")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", r.report.RunID), attribute.String("version", m.Version))

	r.logger.Info("starting major migration", zap.String("from", r.report.FromVersion), zap.String("to", m.Version))
	m.notify(ctx, LevelInfo, true, "migration.started",
		"Applying LANCER System Migration for version %s. Please be patient and do not close your game or shut down your server.",
		m.Version)

	old := m.LegacyCompendiums
	if old == nil {
		old = DefaultLegacyCompendiums()
	}
	specs := m.CompendiumSpecs
	if specs == nil {
		specs = DefaultCompendiumSpecs()
	}
	reset, err := m.ResetCompendiums(ctx, old, specs)
	r.report.Reset = reset
	r.report.Warnings = append(r.report.Warnings, reset.Warnings...)
	if err != nil {
		r.logger.Error("reset compendiums", zap.Error(err))
		r.warn(err.Error())
	}

	r.report.Outcome = m.rebuildReference(ctx, r)

	r.report.Actors = m.migrateActors(ctx, r, document.WorldCollection, ModeMajor)
	r.report.Items = m.migrateItems(ctx, r, document.WorldCollection, ModeMajor)
	r.report.Scenes = m.migrateScenes(ctx, r, document.WorldCollection, ModeMajor)

	if err := m.Settings.SetSetting(ctx, storage.SettingMigrationVersion, m.Version); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record migration version")
		return *r.report, fmt.Errorf("record migration version: %w", err)
	}
	r.logger.Info("major migration complete",
		zap.String("outcome", string(r.report.Outcome)),
		zap.Int("actors_failed", r.report.Actors.Failed),
		zap.Int("items_failed", r.report.Items.Failed),
		zap.Int("scenes_failed", r.report.Scenes.Failed),
	)
	m.notify(ctx, LevelInfo, true, "migration.completed", "LANCER System Migration to version %s completed!", m.Version)
	return *r.report, nil
}

// rebuildReference repopulates the reference data and checks the recorded
// core data version against the one the rebuilder promises.
func (m *Migrator) rebuildReference(ctx context.Context, r *run) Outcome {
	ctx, span := tracer.Start(ctx, "migration.rebuild_reference")
	defer span.End()

	if m.Reference == nil {
		r.logger.Warn("no reference rebuilder configured")
		m.notify(ctx, LevelWarn, true, "migration.needs_rebuild",
			"Reference data must be rebuilt before pilot actors can be migrated.")
		return OutcomeNeedsReferenceRebuild
	}
	expected := m.Reference.Version()
	if err := m.Reference.Rebuild(ctx); err != nil {
		span.RecordError(err)
		r.logger.Error("rebuild reference data", zap.Error(err))
		r.warn(apperrors.LocalizedMessage(
			apperrors.Wrap(apperrors.CodeReferenceRebuildFailed, "rebuild reference data", err),
			m.localizer().Locale(),
		))
	}

	found, err := m.Settings.GetSetting(ctx, storage.SettingCoreDataVersion)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger.Error("read core data version", zap.Error(err))
	}
	if expected != "" && err == nil && found == expected {
		m.notify(ctx, LevelInfo, true, "migration.pilots_ready",
			"Reference data rebuilt. Pilot actors can now be re-imported from their source data.")
		return OutcomeCompleted
	}

	span.SetStatus(codes.Error, "reference data missing")
	r.logger.Error("reference data not rebuilt", zap.String("found", found), zap.String("expected", expected))
	m.notify(ctx, LevelError, true, "migration.rebuild_failed",
		"Reference data was not rebuilt (found core data version %s, expected %s). Pilot migration is unavailable until it is.",
		found, expected)
	return OutcomeRebuildFailed
}

// MigrateMinor runs the minor tier over world actors, scenes and the
// world's own compendiums, then records the version.
func (m *Migrator) MigrateMinor(ctx context.Context) (Report, error) {
	stored, err := m.StoredVersion(ctx)
	if err != nil {
		return Report{}, err
	}
	return m.migrateMinor(ctx, m.newRun(PlanMinor, stored))
}

func (m *Migrator) migrateMinor(ctx context.Context, r *run) (Report, error) {
	ctx, span := tracer.Start(ctx, "migration.minor")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", r.report.RunID), attribute.String("version", m.Version))

	r.logger.Info("starting minor migration", zap.String("from", r.report.FromVersion), zap.String("to", m.Version))
	m.notify(ctx, LevelInfo, false, "migration.minor_started", "Applying minor LANCER System Migration for version %s.", m.Version)

	r.report.Actors = m.migrateActors(ctx, r, document.WorldCollection, ModeMinor)
	r.report.Scenes = m.migrateScenes(ctx, r, document.WorldCollection, ModeMinor)

	comps, err := m.Compendiums.ListCompendiums(ctx)
	if err != nil {
		r.logger.Error("list compendiums", zap.Error(err))
		r.warn(fmt.Sprintf("list compendiums: %v", err))
	}
	for _, comp := range comps {
		if !comp.WorldOwned() || !comp.Kind.Valid() {
			continue
		}
		counts, err := m.migrateCompendium(ctx, r, comp, ModeMinor)
		r.report.Compendiums.add(counts)
		if err != nil {
			r.logger.Error("migrate compendium", zap.String("collection", comp.Collection()), zap.Error(err))
			r.warn(fmt.Sprintf("compendium %s: %v", comp.Collection(), err))
			m.notify(ctx, LevelError, false, "migration.compendium_failed", "Failed to migrate compendium %s.", comp.Label)
		}
	}

	if err := m.Settings.SetSetting(ctx, storage.SettingMigrationVersion, m.Version); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record migration version")
		return *r.report, fmt.Errorf("record migration version: %w", err)
	}
	r.report.Outcome = OutcomeMinorCompleted
	r.logger.Info("minor migration complete")
	m.notify(ctx, LevelInfo, false, "migration.completed", "LANCER System Migration to version %s completed!", m.Version)
	return *r.report, nil
}

// MigrateCompendium migrates every document in a world-owned compendium in
// place. The pack is unlocked for the duration and its lock restored.
func (m *Migrator) MigrateCompendium(ctx context.Context, comp document.Compendium, mode Mode) (Counts, error) {
	return m.migrateCompendium(ctx, m.newRun(PlanNone, ""), comp, mode)
}

func (m *Migrator) migrateCompendium(ctx context.Context, r *run, comp document.Compendium, mode Mode) (Counts, error) {
	ctx, span := tracer.Start(ctx, "migration.compendium")
	defer span.End()
	span.SetAttributes(attribute.String("collection", comp.Collection()))

	if !comp.WorldOwned() {
		return Counts{}, apperrors.WithMetadata(apperrors.CodeCompendiumReadOnly,
			"compendium "+comp.Collection()+" is not world owned",
			map[string]string{"Compendium": comp.Collection()})
	}

	var counts Counts
	err := m.withUnlocked(ctx, comp, func(ctx context.Context) error {
		collection := comp.Collection()
		switch comp.Kind {
		case document.KindActor:
			counts = m.migrateActors(ctx, r, collection, mode)
		case document.KindItem:
			counts = m.migrateItems(ctx, r, collection, mode)
		case document.KindScene:
			counts = m.migrateScenes(ctx, r, collection, mode)
		default:
			return apperrors.WithMetadata(apperrors.CodeDocumentKind, "unsupported compendium kind "+string(comp.Kind),
				map[string]string{"Kind": string(comp.Kind)})
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "migrate compendium")
	}
	return counts, err
}

func (m *Migrator) migrateActors(ctx context.Context, r *run, collection string, mode Mode) Counts {
	ctx, span := tracer.Start(ctx, "migration.actors")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.String("mode", mode.String()))

	var counts Counts
	docs, err := m.Documents.ListDocuments(ctx, collection, document.KindActor)
	if err != nil {
		r.logger.Error("list actors", zap.String("collection", collection), zap.Error(err))
		r.warn(fmt.Sprintf("list actors in %s: %v", collection, err))
		return counts
	}
	for _, doc := range docs {
		change, failures := MigrateActor(doc, mode)
		m.logItemFailures(r, collection, doc.ID, failures)
		if change.Empty() {
			counts.Unchanged++
			continue
		}
		if err := m.Documents.ApplyChange(ctx, collection, document.KindActor, doc.ID, change); err != nil {
			counts.Failed++
			m.logDocumentFailure(r, collection, document.KindActor, doc, err)
			continue
		}
		counts.Migrated++
	}
	return counts
}

func (m *Migrator) migrateItems(ctx context.Context, r *run, collection string, mode Mode) Counts {
	ctx, span := tracer.Start(ctx, "migration.items")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.String("mode", mode.String()))

	var counts Counts
	docs, err := m.Documents.ListDocuments(ctx, collection, document.KindItem)
	if err != nil {
		r.logger.Error("list items", zap.String("collection", collection), zap.Error(err))
		r.warn(fmt.Sprintf("list items in %s: %v", collection, err))
		return counts
	}
	for _, doc := range docs {
		patch, err := MigrateItem(doc, mode)
		if err != nil {
			counts.Failed++
			m.logDocumentFailure(r, collection, document.KindItem, doc, err)
			continue
		}
		if patch.Empty() {
			counts.Unchanged++
			continue
		}
		if err := m.Documents.ApplyChange(ctx, collection, document.KindItem, doc.ID, document.Change{Patch: patch}); err != nil {
			counts.Failed++
			m.logDocumentFailure(r, collection, document.KindItem, doc, err)
			continue
		}
		counts.Migrated++
	}
	return counts
}

func (m *Migrator) logDocumentFailure(r *run, collection string, kind document.Kind, doc document.Document, err error) {
	r.logger.Error("migrate document",
		zap.String("collection", collection),
		zap.String("kind", string(kind)),
		zap.String("doc_id", doc.ID),
		zap.String("name", doc.Name),
		zap.Error(err),
	)
	r.warn(fmt.Sprintf("%s %s (%s): %s", kind, doc.ID, doc.Name, apperrors.LocalizedMessage(err, m.localizer().Locale())))
}

func (m *Migrator) logItemFailures(r *run, collection, actorID string, failures []ItemFailure) {
	for _, failure := range failures {
		r.logger.Warn("migrate owned item",
			zap.String("collection", collection),
			zap.String("actor_id", actorID),
			zap.String("item_id", failure.ItemID),
			zap.Error(failure.Err),
		)
		r.warn(fmt.Sprintf("Actor %s item %s: %s", actorID, failure.ItemID,
			apperrors.LocalizedMessage(failure.Err, m.localizer().Locale())))
	}
}

// MigratePilots hands every world pilot to importer and returns how many
// were imported. Individual failures are logged and skipped.
func (m *Migrator) MigratePilots(ctx context.Context, importer PilotImporter) (int, error) {
	ctx, span := tracer.Start(ctx, "migration.pilots")
	defer span.End()

	docs, err := m.Documents.ListDocuments(ctx, document.WorldCollection, document.KindActor)
	if err != nil {
		return 0, fmt.Errorf("list actors: %w", err)
	}
	logger := m.logger()
	imported := 0
	for _, doc := range docs {
		if doc.Type != document.TypePilot {
			continue
		}
		if err := importer.ImportPilot(ctx, doc); err != nil {
			logger.Error("import pilot", zap.String("doc_id", doc.ID), zap.String("name", doc.Name), zap.Error(err))
			continue
		}
		imported++
	}
	return imported, nil
}
