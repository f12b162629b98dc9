package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/lancer-system/internal/platform/errors"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

// CompendiumSpec names a compendium pack the system expects to exist.
type CompendiumSpec struct {
	Kind  document.Kind
	Label string
}

// ID returns the pack identifier derived from the label.
func (s CompendiumSpec) ID() string {
	return document.CompendiumID(s.Label)
}

// EmptyLCPIndex is the installed content pack index of a world with no
// reference data imported.
const EmptyLCPIndex = `{"index":[]}`

// NoCoreData is the core data version recorded while reference data is absent.
const NoCoreData = "0.0.0"

// DefaultLegacyCompendiums returns the labels of packs created by releases
// before the reference data moved to per-type packs.
func DefaultLegacyCompendiums() []string {
	return []string{
		"Skill Triggers",
		"Talents",
		"Core Bonuses",
		"Pilot Armor",
		"Pilot Weapons",
		"Pilot Gear",
		"Frames",
		"Systems",
		"Weapons",
		"NPC Classes",
		"NPC Templates",
		"NPC Features",
	}
}

// DefaultCompendiumSpecs returns the packs the current reference data is
// imported into.
func DefaultCompendiumSpecs() []CompendiumSpec {
	specs := []CompendiumSpec{{Kind: document.KindActor, Label: "Deployable"}}
	for _, label := range []string{
		"Core Bonus",
		"Environment",
		"Frame",
		"License",
		"Manufacturer",
		"Mech System",
		"Mech Weapon",
		"Pilot Armor",
		"Pilot Gear",
		"Reserve",
		"Sitrep",
		"Skill",
		"Status/Condition",
		"Tag",
		"Talent",
		"Weapon Mod",
	} {
		specs = append(specs, CompendiumSpec{Kind: document.KindItem, Label: label})
	}
	return specs
}

// ResetReport summarizes a compendium reset.
type ResetReport struct {
	Deleted  []string `json:"deleted,omitempty"`
	Created  []string `json:"created,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ResetCompendiums deletes the packs labelled in old and creates the empty
// packs in specs that are missing. Packs that cannot be unlocked or deleted
// are reported and left alone. The core data markers are then cleared so
// the reference data is treated as absent until rebuilt.
func (m *Migrator) ResetCompendiums(ctx context.Context, old []string, specs []CompendiumSpec) (ResetReport, error) {
	ctx, span := tracer.Start(ctx, "migration.reset_compendiums")
	defer span.End()

	var report ResetReport
	logger := m.logger()

	legacy := make(map[string]struct{}, len(old))
	for _, label := range old {
		legacy[label] = struct{}{}
	}

	existing, err := m.Compendiums.ListCompendiums(ctx)
	if err != nil {
		return report, fmt.Errorf("list compendiums: %w", err)
	}
	for _, comp := range existing {
		if _, ok := legacy[comp.Label]; !ok {
			continue
		}
		collection := comp.Collection()
		if err := m.Compendiums.SetCompendiumLocked(ctx, collection, false); err != nil {
			logger.Warn("unlock compendium", zap.String("collection", collection), zap.Error(err))
			report.Warnings = append(report.Warnings, m.unlockWarning(collection, err))
			continue
		}
		if err := m.Compendiums.DeleteCompendium(ctx, collection); err != nil {
			logger.Warn("delete compendium", zap.String("collection", collection), zap.Error(err))
			report.Warnings = append(report.Warnings, fmt.Sprintf("delete compendium %s: %v", collection, err))
			if comp.Locked {
				if lockErr := m.Compendiums.SetCompendiumLocked(context.WithoutCancel(ctx), collection, true); lockErr != nil {
					logger.Warn("relock compendium", zap.String("collection", collection), zap.Error(lockErr))
					report.Warnings = append(report.Warnings, fmt.Sprintf("relock compendium %s: %v", collection, lockErr))
				}
			}
			continue
		}
		logger.Info("deleted legacy compendium", zap.String("collection", collection))
		report.Deleted = append(report.Deleted, collection)
	}

	for _, spec := range specs {
		comp := document.Compendium{
			ID:      spec.ID(),
			Label:   spec.Label,
			Kind:    spec.Kind,
			Package: document.WorldPackage,
		}
		collection := comp.Collection()
		_, err := m.Compendiums.GetCompendium(ctx, collection)
		switch {
		case err == nil:
			report.Skipped = append(report.Skipped, collection)
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return report, fmt.Errorf("get compendium %s: %w", collection, err)
		}
		if err := m.Compendiums.CreateCompendium(ctx, comp); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				report.Skipped = append(report.Skipped, collection)
				continue
			}
			return report, fmt.Errorf("create compendium %s: %w", collection, err)
		}
		logger.Info("created compendium", zap.String("collection", collection), zap.String("kind", string(spec.Kind)))
		report.Created = append(report.Created, collection)
	}

	if err := m.Settings.SetSetting(ctx, storage.SettingCoreDataVersion, NoCoreData); err != nil {
		return report, fmt.Errorf("reset core data version: %w", err)
	}
	if err := m.Settings.SetSetting(ctx, storage.SettingInstalledLCPs, EmptyLCPIndex); err != nil {
		return report, fmt.Errorf("reset installed content packs: %w", err)
	}
	return report, nil
}

func (m *Migrator) unlockWarning(collection string, err error) string {
	code := apperrors.CodeCompendiumLocked
	if errors.Is(err, storage.ErrReadOnly) {
		code = apperrors.CodeCompendiumReadOnly
	}
	return apperrors.LocalizedMessage(
		apperrors.WrapWithMetadata(code, "unlock compendium "+collection, map[string]string{"Compendium": collection}, err),
		m.localizer().Locale(),
	)
}

// withUnlocked runs fn with the compendium unlocked and restores the prior
// lock state afterwards, even when fn fails.
func (m *Migrator) withUnlocked(ctx context.Context, comp document.Compendium, fn func(context.Context) error) (err error) {
	if !comp.Locked {
		return fn(ctx)
	}
	collection := comp.Collection()
	if err := m.Compendiums.SetCompendiumLocked(ctx, collection, false); err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeCompendiumLocked, "unlock compendium "+collection,
			map[string]string{"Compendium": collection}, err)
	}
	defer func() {
		if lockErr := m.Compendiums.SetCompendiumLocked(context.WithoutCancel(ctx), collection, true); lockErr != nil {
			err = errors.Join(err, fmt.Errorf("relock compendium %s: %w", collection, lockErr))
		}
	}()
	return fn(ctx)
}
