package migration

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/lancer-system/internal/platform/errors"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// Registry name legacy references are resolved against.
const coreRegistry = "comp_core"

// Default power ratings for migrated NPC classes and templates.
const (
	npcClassPower    = 100
	npcTemplatePower = 20
)

const damageTiers = 3

// MigrateItem computes the patch for an item. Only the major tier touches
// items; unrecognized types yield an empty patch.
func MigrateItem(doc document.Document, mode Mode) (document.Patch, error) {
	var patch document.Patch
	if mode != ModeMajor {
		return patch, nil
	}
	data := doc.Data
	if data == nil {
		data = document.Fields{}
	}

	var err error
	switch doc.Type {
	case document.TypeNPCClass:
		patch, err = migrateNPCClass(doc.ID, data)
	case document.TypeNPCTemplate:
		patch, err = migrateNPCTemplate(doc.ID, data)
	case document.TypeNPCFeature:
		patch, err = migrateNPCFeature(doc.ID, data)
	default:
		return patch, nil
	}
	if err != nil {
		return document.Patch{}, err
	}
	patch.Merge(Scrub(data))
	return patch, nil
}

func migrateNPCClass(docID string, data document.Fields) (document.Patch, error) {
	var patch document.Patch
	if err := setFeatureRefs(&patch, docID, data); err != nil {
		return document.Patch{}, err
	}

	if stats, ok := data.Object("stats"); ok {
		base := stats.Clone()
		if evasion, ok := base["evasion"]; ok {
			base["evade"] = evasion
		}
		if sensor, ok := base["sensor_range"]; ok {
			base["sensor"] = sensor
		}
		for _, key := range []string{"evasion", "sensor_range", "structure", "stress"} {
			delete(base, key)
		}
		patch.Set("base_stats", map[string]any(base))
	} else if data.Has("stats") {
		return document.Patch{}, malformed(docID, "stats")
	}

	if role, ok := data.Get("mech_type"); ok {
		patch.Set("role", role)
	}
	patch.Set("power", npcClassPower)

	for _, key := range []string{"id", "flavor_name", "flavor_description", "description", "mech_type", "item_type", "note"} {
		patch.Delete(key)
	}
	return patch, nil
}

func migrateNPCTemplate(docID string, data document.Fields) (document.Patch, error) {
	var patch document.Patch
	if err := setFeatureRefs(&patch, docID, data); err != nil {
		return document.Patch{}, err
	}
	patch.Set("power", npcTemplatePower)
	for _, key := range []string{"flavor_name", "flavor_description", "item_type", "note"} {
		patch.Delete(key)
	}
	return patch, nil
}

// setFeatureRefs copies id to lid and turns the plain feature id lists into
// registry references.
func setFeatureRefs(patch *document.Patch, docID string, data document.Fields) error {
	if id, ok := data.Get("id"); ok {
		patch.Set("lid", id)
	}
	for _, field := range []string{"base_features", "optional_features"} {
		refs, err := featureRefs(docID, field, data)
		if err != nil {
			return err
		}
		patch.Set(field, refs)
	}
	return nil
}

func featureRefs(docID, field string, data document.Fields) ([]any, error) {
	refs := []any{}
	raw, ok := data.Get(field)
	if !ok || raw == nil {
		return refs, nil
	}
	ids, ok := raw.([]any)
	if !ok {
		return nil, malformed(docID, field)
	}
	for _, id := range ids {
		lid, ok := id.(string)
		if !ok {
			return nil, malformed(docID, field)
		}
		refs = append(refs, registryRef(lid, document.TypeNPCFeature))
	}
	return refs, nil
}

func registryRef(lid, entryType string) map[string]any {
	return map[string]any{
		"id":           "",
		"fallback_lid": lid,
		"type":         entryType,
		"reg_name":     coreRegistry,
	}
}

func migrateNPCFeature(docID string, data document.Fields) (document.Patch, error) {
	var patch document.Patch

	lid, _ := data.Get("id")
	if lid == nil {
		lid = ""
	}
	patch.Set("lid", lid)
	patch.Set("loaded", true)
	if featureType, ok := data.Get("feature_type"); ok {
		patch.Set("type", featureType)
	}
	origin := map[string]any{}
	for _, part := range []string{"name", "base", "type"} {
		if value, ok := data.Get("origin_" + part); ok {
			origin[part] = value
		}
	}
	patch.Set("origin", origin)
	patch.Set("tier_override", 0)

	for _, field := range []string{"accuracy", "attack_bonus"} {
		values, err := normalizeInts(docID, field, data)
		if err != nil {
			return document.Patch{}, err
		}
		patch.Set(field, values)
	}

	damage, err := transposeDamage(docID, data)
	if err != nil {
		return document.Patch{}, err
	}
	patch.Set("damage", damage)

	tags, err := convertTags(docID, data)
	if err != nil {
		return document.Patch{}, err
	}
	patch.Set("tags", tags)

	for _, key := range []string{"id", "feature_type", "max_uses"} {
		patch.Delete(key)
	}
	// Non-empty flavor text and notes are kept.
	for _, key := range []string{"flavor_description", "flavor_name", "note"} {
		if value, ok := data.String(key); ok && value == "" {
			patch.Delete(key)
		}
	}
	for _, key := range []string{"origin_name", "origin_base", "origin_type"} {
		patch.Delete(key)
	}
	return patch, nil
}

// normalizeInts coerces every entry of a per-tier numeric list to an int.
// Strings are read like a leading-integer parse: "" and non-numeric text
// become 0. Other values pass through.
func normalizeInts(docID, field string, data document.Fields) ([]any, error) {
	out := []any{}
	raw, ok := data.Get(field)
	if !ok || raw == nil {
		return out, nil
	}
	values, ok := raw.([]any)
	if !ok {
		return nil, malformed(docID, field)
	}
	for _, value := range values {
		out = append(out, coerceInt(value))
	}
	return out, nil
}

func coerceInt(value any) any {
	switch v := value.(type) {
	case string:
		return parseLeadingInt(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
		return v
	default:
		return value
	}
}

func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// transposeDamage turns per-type tier lists into per-tier type lists.
func transposeDamage(docID string, data document.Fields) ([]any, error) {
	tiers := make([][]any, damageTiers)
	for i := range tiers {
		tiers[i] = []any{}
	}
	raw, ok := data.Get("damage")
	if ok && raw != nil {
		entries, ok := raw.([]any)
		if !ok {
			return nil, malformed(docID, "damage")
		}
		for _, entry := range entries {
			damage, ok := document.AsFields(entry)
			if !ok {
				continue
			}
			vals, ok := damage["val"].([]any)
			if !ok {
				continue
			}
			for i := 0; i < len(vals) && i < damageTiers; i++ {
				tiers[i] = append(tiers[i], map[string]any{"type": damage["type"], "val": vals[i]})
			}
		}
	}
	out := make([]any, damageTiers)
	for i, tier := range tiers {
		out[i] = tier
	}
	return out, nil
}

// convertTags turns legacy {id, val} tags into registry tag references.
// Tags without an id are dropped.
func convertTags(docID string, data document.Fields) ([]any, error) {
	out := []any{}
	raw, ok := data.Get("tags")
	if !ok || raw == nil {
		return out, nil
	}
	var tags []any
	switch v := raw.(type) {
	case []any:
		tags = v
	default:
		obj, ok := document.AsFields(raw)
		if !ok {
			return nil, malformed(docID, "tags")
		}
		tags = arrayify(obj)
	}
	for _, entry := range tags {
		tag, ok := document.AsFields(entry)
		if !ok {
			continue
		}
		id, _ := tag["id"].(string)
		if id == "" {
			continue
		}
		converted := map[string]any{"tag": registryRef(id, document.TypeTag)}
		if val, ok := tag["val"]; ok {
			converted["val"] = val
		}
		out = append(out, converted)
	}
	return out, nil
}

// arrayify orders an index-keyed object ("0", "1", ...) into a list.
// Non-numeric keys sort after numeric ones.
func arrayify(obj document.Fields) []any {
	keys := obj.SortedKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		default:
			return false
		}
	})
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		out = append(out, obj[key])
	}
	return out
}

func malformed(docID, field string) error {
	return apperrors.WithMetadata(
		apperrors.CodeDocumentMalformed,
		fmt.Sprintf("document %s: unexpected shape for %s", docID, field),
		map[string]string{"DocID": docID, "Field": field},
	)
}
