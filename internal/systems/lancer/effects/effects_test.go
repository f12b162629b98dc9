package effects

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

func effectFields(id string, disabled bool, flags map[string]any) document.Fields {
	fields := document.Fields{"_id": id, "name": id, "disabled": disabled}
	if flags != nil {
		fields["flags"] = map[string]any{"lancer": flags}
	}
	return fields
}

func TestDecode(t *testing.T) {
	effect, err := Decode(document.Fields{
		"_id":      "e1",
		"label":    "Legacy Name",
		"disabled": true,
		"changes": []any{
			map[string]any{"key": "system.hp.max", "mode": 2.0, "value": "2"},
		},
		"flags": map[string]any{
			"lancer": map[string]any{"target_type": "mech", "deep_origin": "Actor.p1", "ephemeral": true},
			"core":   map[string]any{"statusId": "x"},
		},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Effect{
		ID:       "e1",
		Name:     "Legacy Name",
		Disabled: true,
		Changes:  []Change{{Key: "system.hp.max", Mode: 2, Value: "2"}},
		Flags:    Flags{Ephemeral: true, TargetType: TargetMech, DeepOrigin: "Actor.p1"},
	}
	if diff := cmp.Diff(want, effect); diff != "" {
		t.Fatalf("effect mismatch (-want +got):\n%s", diff)
	}
}

func TestAffectsActor(t *testing.T) {
	pilot := &document.Document{Type: document.TypePilot}
	mech := &document.Document{Type: document.TypeMech}
	npc := &document.Document{Type: document.TypeNPC}
	drone := &document.Document{Type: document.TypeDeployable, Data: document.Fields{"type": "Drone"}}
	deployable := &document.Document{Type: document.TypeDeployable, Data: document.Fields{"type": "Deployable"}}

	tests := []struct {
		target TargetType
		actor  *document.Document
		want   bool
	}{
		{"", nil, true},
		{"", mech, true},
		{TargetMech, nil, false},
		{TargetPilot, pilot, true},
		{TargetPilot, mech, false},
		{TargetMech, mech, true},
		{TargetNPC, npc, true},
		{TargetDeployable, drone, true},
		{TargetMechAndNPC, mech, true},
		{TargetMechAndNPC, npc, true},
		{TargetMechAndNPC, pilot, false},
		{TargetOnlyDrone, drone, true},
		{TargetOnlyDrone, deployable, false},
		{TargetOnlyDeployable, deployable, true},
		{TargetOnlyDeployable, mech, false},
		{"vehicle", mech, false},
	}
	for _, tt := range tests {
		effect := Effect{Flags: Flags{TargetType: tt.target}}
		if got := AffectsActor(effect, tt.actor); got != tt.want {
			t.Errorf("AffectsActor(%q, %v) = %v, want %v", tt.target, tt.actor, got, tt.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	actor := document.Document{
		ID:   "m1",
		Type: document.TypeMech,
		Effects: []document.Fields{
			effectFields("passive", false, nil),
			effectFields("pilot-only", false, map[string]any{"target_type": "pilot"}),
			effectFields("off", true, nil),
		},
		Items: []document.Document{{
			ID: "frame",
			Effects: []document.Fields{
				effectFields("inherited", false, map[string]any{"deep_origin": "Actor.p1.Item.t1"}),
			},
		}},
	}

	categories, err := Categorize(actor, nil)
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	got := map[string][]int{}
	for _, category := range categories {
		for _, e := range category.Effects {
			got[category.Type] = append(got[category.Type], e.Index)
		}
	}
	want := map[string][]int{
		CategoryPassive:     {0},
		CategoryPassthrough: {1},
		CategoryDisabled:    {2},
		CategoryInherited:   {3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if categories[0].Label != "Passive Effects" {
		t.Fatalf("label = %q", categories[0].Label)
	}
}

func TestJSONApplier(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := &JSONApplier{Logger: zap.New(core)}
	target := document.Fields{"bonuses": []any{"a"}, "name": "x"}

	if !a.Apply(target, Change{Key: "loadout.extra", Mode: ModeSetJSON, Value: `{"slots":2}`}) {
		t.Fatal("expected set to apply")
	}
	if !a.Apply(target, Change{Key: "bonuses", Mode: ModeAppendJSON, Value: `{"lid":"cb_x"}`}) {
		t.Fatal("expected append to apply")
	}
	want := document.Fields{
		"bonuses": []any{"a", map[string]any{"lid": "cb_x"}},
		"name":    "x",
		"loadout": map[string]any{"extra": map[string]any{"slots": 2.0}},
	}
	if diff := cmp.Diff(want, target); diff != "" {
		t.Fatalf("target mismatch (-want +got):\n%s", diff)
	}

	if a.Apply(target, Change{Key: "name", Mode: ModeAppendJSON, Value: `1`}) {
		t.Fatal("append to a string should not apply")
	}
	if a.Apply(target, Change{Key: "name", Mode: ModeSetJSON, Value: `{broken`}) {
		t.Fatal("broken JSON should not apply")
	}
	if a.Apply(target, Change{Key: "name", Mode: 2, Value: `1`}) {
		t.Fatal("non-JSON mode should not apply")
	}
	if logs.Len() != 2 {
		t.Fatalf("warnings = %d, want 2", logs.Len())
	}
	if len(a.cache) != 3 {
		t.Fatalf("cache = %d entries, want 3", len(a.cache))
	}
}

func TestConfigureDefaultsToDefaultSet(t *testing.T) {
	statuses, err := Configure(nil)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if len(statuses) == 0 || statuses[0].ID != "immobilized" {
		t.Fatalf("statuses = %+v", statuses)
	}
	for _, s := range statuses {
		if s.Icon == "" || s.Name == "" {
			t.Fatalf("incomplete status %+v", s)
		}
	}
}

func TestConfigureSwapsIconsInBundleOrder(t *testing.T) {
	defaults, err := Configure([]string{DefaultIconSet})
	if err != nil {
		t.Fatalf("configure default: %v", err)
	}
	combined, err := Configure([]string{"cancer", DefaultIconSet})
	if err != nil {
		t.Fatalf("configure combined: %v", err)
	}
	if len(combined) != len(defaults) {
		t.Fatalf("combined = %d statuses, want %d", len(combined), len(defaults))
	}
	if combined[0].ID != "immobilized" || combined[0].Icon != "systems/lancer/assets/icons/cancermantis/immobilized.svg" {
		t.Fatalf("first status = %+v", combined[0])
	}

	utility, err := Configure([]string{"hayley_utility"})
	if err != nil {
		t.Fatalf("configure utility: %v", err)
	}
	if len(utility) != 3 {
		t.Fatalf("utility = %+v", utility)
	}

	if _, err := Configure([]string{"nope"}); err == nil {
		t.Fatal("expected unknown set error")
	}
}

func TestIconSets(t *testing.T) {
	names, err := IconSets()
	if err != nil {
		t.Fatalf("icon sets: %v", err)
	}
	if len(names) != 8 || names[0] != DefaultIconSet {
		t.Fatalf("names = %v", names)
	}
}

func TestPopulateFromItems(t *testing.T) {
	statuses := []Status{{ID: "slow", Name: "Slowed", Icon: "old.svg"}}
	items := []document.Document{
		{Type: document.TypeStatus, Name: "Slowed", Img: "new.svg", Data: document.Fields{"lid": "slow", "effects": "Only standard moves."}},
		{Type: document.TypeStatus, Name: "Burning", Img: "burn.svg", Data: document.Fields{"lid": "burning"}},
		{Type: document.TypeStatus, Name: "No Image", Data: document.Fields{"lid": "noimg"}},
		{Type: document.TypeStatus, Name: "No LID", Img: "x.svg", Data: document.Fields{}},
		{Type: document.TypeTag, Name: "Tag", Img: "tag.svg", Data: document.Fields{"lid": "tg"}},
	}
	got := PopulateFromItems(statuses, items)
	want := []Status{
		{ID: "slow", Name: "Slowed", Icon: "new.svg", Description: "Only standard moves."},
		{ID: "burning", Name: "Burning", Icon: "burn.svg"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	if statuses[0].Icon != "old.svg" {
		t.Fatal("input palette was modified")
	}
}
