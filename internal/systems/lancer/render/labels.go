package render

import (
	"github.com/louisbranch/lancer-system/internal/platform/i18n/catalog"
)

// Labels resolves display labels for system types, tags and the structure
// and overheat tables. Every lookup falls back to the caller's default when
// the catalog has no translation.
type Labels struct {
	Localizer *catalog.Localizer
}

// NewLabels returns labels for locale.
func NewLabels(locale string) Labels {
	return Labels{Localizer: catalog.Default().Localizer(locale)}
}

func (l Labels) localizer() *catalog.Localizer {
	if l.Localizer != nil {
		return l.Localizer
	}
	return catalog.Default().Localizer(catalog.BaseLocale)
}

func (l Labels) lookup(key, fallback string) string {
	return l.localizer().Localize(key, fallback)
}

// MechWeaponType returns the label of a mech weapon type such as Rifle.
func (l Labels) MechWeaponType(source string) string {
	return l.lookup("lancer.types.weapon_type."+source, source)
}

// MechWeaponSize returns the label of a mech weapon size such as Main.
func (l Labels) MechWeaponSize(source string) string {
	return l.lookup("lancer.types.weapon_size."+source, source)
}

func (l Labels) TagName(tagID, fallback string) string {
	return l.lookup("lancer.types.tag.name."+tagID, fallback)
}

func (l Labels) TagDescription(tagID, fallback string) string {
	return l.lookup("lancer.types.tag.description."+tagID, fallback)
}

// StructureTableTitle returns the title of a structure table result. The key
// is the English result name; spaces map to underscores in the catalog key.
func (l Labels) StructureTableTitle(key string) string {
	return l.lookup("lancer.tables.structure.title."+catalog.KeySegment(key), key)
}

func (l Labels) StructureTableDesc(key string) string {
	return l.lookup("lancer.tables.structure.effect."+catalog.KeySegment(key), key)
}

func (l Labels) OverheatTableTitle(key string) string {
	return l.lookup("lancer.tables.overheat.title."+catalog.KeySegment(key), key)
}

func (l Labels) OverheatTableDesc(key string) string {
	return l.lookup("lancer.tables.overheat.effect."+catalog.KeySegment(key), key)
}
