package migration

import (
	"strings"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// barAttributes maps fragments of legacy bar attribute paths to their
// current attribute. Order matters: the first fragment contained in the old
// path wins.
var barAttributes = []struct {
	fragment  string
	attribute string
}{
	{"heat", "derived.heat"},
	{"hp", "derived.hp"},
	{"shield", "derived.overshield"},
	{"burn", "burn"},
	{"struct", "derived.structure"},
	{"stress", "derived.stress"},
	{"rep", "derived.repairs"},
}

const defaultBarAttribute = "derived.hp"

// BarAttribute maps a legacy bar attribute path to its current one.
// Unrecognized paths fall back to hit points.
func BarAttribute(old string) string {
	for _, entry := range barAttributes {
		if strings.Contains(old, entry.fragment) {
			return entry.attribute
		}
	}
	return defaultBarAttribute
}

// MigrateToken remaps the token's standard bars and any bar brawl resource
// bars. Bars without an attribute get hit points. It reports whether the
// token changed.
func MigrateToken(token document.Token) (document.Token, bool) {
	out := token.Clone()
	changed := false

	for _, bar := range []*document.Bar{out.Bar1, out.Bar2} {
		if bar == nil {
			continue
		}
		if next := BarAttribute(bar.Attribute); next != bar.Attribute {
			bar.Attribute = next
			changed = true
		}
	}

	bars, ok := out.Flags.Object("barbrawl.resourceBars")
	if ok {
		for _, key := range bars.SortedKeys() {
			bar, ok := document.AsFields(bars[key])
			if !ok {
				continue
			}
			old, ok := bar["attribute"].(string)
			if next := BarAttribute(old); !ok || next != old {
				bar["attribute"] = next
				changed = true
			}
		}
	}

	if !changed {
		return token, false
	}
	return out, true
}
