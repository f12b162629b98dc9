package migration

import (
	"strings"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// Mode selects the migration tier.
type Mode int

const (
	// ModeMajor reshapes legacy documents into the current schema.
	ModeMajor Mode = iota + 1
	// ModeMinor only renames fields within the current schema.
	ModeMinor
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeMajor:
		return "major"
	case ModeMinor:
		return "minor"
	}
	return "unknown"
}

const currentPrefix = "current_"

// ItemFailure records an owned item that could not be migrated. The rest
// of the actor's change is still valid.
type ItemFailure struct {
	ItemID string
	Err    error
}

// MigrateActor computes the change for an actor and its owned items.
// Unrecognized actor types yield an empty change.
func MigrateActor(doc document.Document, mode Mode) (document.Change, []ItemFailure) {
	var change document.Change
	if !document.IsActorType(doc.Type) {
		return change, nil
	}
	data := doc.Data
	if data == nil {
		data = document.Fields{}
	}

	if mode == ModeMinor {
		change.Patch = migrateActorMinor(data)
		return change, nil
	}

	switch doc.Type {
	case document.TypeNPC:
		change.Patch = migrateNPC(data)
	case document.TypeDeployable:
		change.Patch = migrateDeployable(data)
	default:
		return change, nil
	}

	var failures []ItemFailure
	for _, item := range doc.Items {
		patch, err := MigrateItem(item, ModeMajor)
		if err != nil {
			failures = append(failures, ItemFailure{ItemID: item.ID, Err: err})
			continue
		}
		if patch.Empty() {
			continue
		}
		if change.Items == nil {
			change.Items = map[string]document.Patch{}
		}
		change.Items[item.ID] = patch
	}

	change.Patch.Merge(Scrub(data))
	return change, failures
}

// migrateActorMinor moves every current_* field to its unprefixed name and
// drops the cached derived block. Keys containing a dot cannot be addressed
// by a patch path and are left alone.
func migrateActorMinor(data document.Fields) document.Patch {
	var patch document.Patch
	for _, key := range data.SortedKeys() {
		if !strings.HasPrefix(key, currentPrefix) || strings.Contains(key, ".") {
			continue
		}
		name := strings.TrimPrefix(key, currentPrefix)
		if name == "" {
			continue
		}
		patch.Set(name, data[key])
		patch.Delete(key)
	}
	if data.Has("derived") {
		patch.Delete("derived")
	}
	return patch
}

func migrateNPC(data document.Fields) document.Patch {
	var patch document.Patch
	if tier, ok := data.Get("tier_num"); ok {
		patch.Set("tier", tier)
	}
	// Unlinked token actors only carry the fields that differ from their
	// base actor, so any of these may be absent.
	for _, stat := range []string{"heat", "hp", "stress", "structure"} {
		if value, ok := data.Get("mech." + stat + ".value"); ok {
			patch.Set(stat, value)
		}
	}
	patch.Delete("mech")
	patch.Delete("npc_size")
	patch.Delete("activations")
	return patch
}

func migrateDeployable(data document.Fields) document.Patch {
	var patch document.Patch
	if effect, ok := data.Get("effect"); ok {
		patch.Set("detail", effect)
	}
	if heat, ok := data.Object("heat"); ok {
		if value, ok := heat["value"]; ok {
			patch.Set("heat", value)
		}
		if max, ok := heat["max"]; ok {
			patch.Set("heatcap", max)
		}
	}
	if hp, ok := data.Object("hp"); ok {
		if value, ok := hp["value"]; ok {
			patch.Set("hp", value)
		}
		if max, ok := hp["max"]; ok {
			patch.Set("max_hp", max)
		}
	}
	patch.Delete("description")
	return patch
}
