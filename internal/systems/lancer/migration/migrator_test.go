package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

const testVersion = "1.0.0"

func newTestMigrator(store *fakeStore) (*Migrator, *recordingNotifier, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	notifier := &recordingNotifier{}
	m := New(store, testVersion)
	m.Logger = zap.New(core)
	m.Notifier = notifier
	m.Reference = &fakeRebuilder{store: store, version: "3.0.0"}
	return m, notifier, logs
}

func npc(id string, tier float64) document.Document {
	return document.Document{
		ID:   id,
		Kind: document.KindActor,
		Type: document.TypeNPC,
		Name: "NPC " + id,
		Data: document.Fields{"tier_num": tier, "npc_size": 1.0},
	}
}

func TestMigrateActorsContinuesAfterFailure(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		store.add(document.WorldCollection, npc(id, 1))
	}
	store.applyErr = map[string]error{"a3": errors.New("disk full")}
	m, _, logs := newTestMigrator(store)

	r := m.newRun(PlanMajor, "0.1.0")
	counts := m.migrateActors(context.Background(), r, document.WorldCollection, ModeMajor)

	if diff := cmp.Diff(Counts{Migrated: 4, Failed: 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "a3", "a4", "a5"}, store.applied); diff != "" {
		t.Fatalf("attempt order mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []string{"a4", "a5"} {
		doc, _ := store.doc(document.WorldCollection, document.KindActor, id)
		if _, ok := doc.Data.Get("tier"); !ok {
			t.Fatalf("%s was not migrated", id)
		}
	}

	failures := logs.FilterMessage("migrate document").All()
	if len(failures) != 1 {
		t.Fatalf("failure logs = %d, want 1", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["doc_id"] != "a3" || fields["collection"] != document.WorldCollection {
		t.Fatalf("failure log fields = %v", fields)
	}
	if len(r.report.Warnings) != 1 {
		t.Fatalf("warnings = %v", r.report.Warnings)
	}
}

func TestMigrateItemsCountsMalformedDocuments(t *testing.T) {
	store := newFakeStore()
	store.add(document.WorldCollection,
		document.Document{ID: "i1", Kind: document.KindItem, Type: document.TypeNPCFeature, Data: document.Fields{"id": "npcf_a"}},
		document.Document{ID: "i2", Kind: document.KindItem, Type: document.TypeNPCFeature, Data: document.Fields{"damage": "lots"}},
		document.Document{ID: "i3", Kind: document.KindItem, Type: document.TypeSkill, Data: document.Fields{}},
	)
	m, _, _ := newTestMigrator(store)

	counts := m.migrateItems(context.Background(), m.newRun(PlanMajor, ""), document.WorldCollection, ModeMajor)
	if diff := cmp.Diff(Counts{Migrated: 1, Unchanged: 1, Failed: 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	doc, _ := store.doc(document.WorldCollection, document.KindItem, "i1")
	if lid, _ := doc.Data.String("lid"); lid != "npcf_a" {
		t.Fatalf("lid = %q", lid)
	}
}

func TestResetCompendiums(t *testing.T) {
	store := newFakeStore()
	store.compendiums = []document.Compendium{
		{ID: "frames", Label: "Frames", Kind: document.KindItem, Package: document.WorldPackage, Locked: true},
		{ID: "notes", Label: "Notes", Kind: document.KindItem, Package: document.WorldPackage},
	}
	store.add("world.frames", document.Document{ID: "f1", Kind: document.KindItem, Type: document.TypeFrame})
	m, _, _ := newTestMigrator(store)

	report, err := m.ResetCompendiums(context.Background(), []string{"Frames"}, []CompendiumSpec{{Kind: document.KindItem, Label: "Frame"}})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	var frames []document.Compendium
	for _, comp := range store.compendiums {
		if comp.Label == "Frames" {
			t.Fatalf("legacy compendium still present: %+v", comp)
		}
		if comp.ID == "frame" {
			frames = append(frames, comp)
		}
	}
	if len(frames) != 1 || frames[0].Kind != document.KindItem {
		t.Fatalf("frame compendiums = %+v, want one Item pack", frames)
	}
	if docs, _ := store.ListDocuments(context.Background(), "world.frames", document.KindItem); len(docs) != 0 {
		t.Fatalf("legacy contents = %d, want 0", len(docs))
	}
	if diff := cmp.Diff(ResetReport{Deleted: []string{"world.frames"}, Created: []string{"world.frame"}}, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	if got := store.settings[storage.SettingCoreDataVersion]; got != NoCoreData {
		t.Fatalf("core data version = %q", got)
	}
	if got := store.settings[storage.SettingInstalledLCPs]; got != EmptyLCPIndex {
		t.Fatalf("installed LCPs = %q", got)
	}

	again, err := m.ResetCompendiums(context.Background(), []string{"Frames"}, []CompendiumSpec{{Kind: document.KindItem, Label: "Frame"}})
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if diff := cmp.Diff(ResetReport{Skipped: []string{"world.frame"}}, again); diff != "" {
		t.Fatalf("second report mismatch (-want +got):\n%s", diff)
	}
}

func TestResetCompendiumsSkipsPacksThatCannotBeUnlocked(t *testing.T) {
	store := newFakeStore()
	store.compendiums = []document.Compendium{
		{ID: "weapons", Label: "Weapons", Kind: document.KindItem, Package: document.WorldPackage, Locked: true},
		{ID: "systems", Label: "Systems", Kind: document.KindItem, Package: "lancer", Locked: true},
		{ID: "talents", Label: "Talents", Kind: document.KindItem, Package: document.WorldPackage},
	}
	store.unlockErr = map[string]error{"world.weapons": errors.New("permission denied")}
	m, _, logs := newTestMigrator(store)

	report, err := m.ResetCompendiums(context.Background(), DefaultLegacyCompendiums(), nil)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if diff := cmp.Diff([]string{"world.talents"}, report.Deleted); diff != "" {
		t.Fatalf("deleted mismatch (-want +got):\n%s", diff)
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", report.Warnings)
	}
	if len(store.compendiums) != 2 {
		t.Fatalf("compendiums = %+v, want locked packs kept", store.compendiums)
	}
	if got := logs.FilterMessage("unlock compendium").Len(); got != 2 {
		t.Fatalf("unlock logs = %d, want 2", got)
	}
}

func TestResetCompendiumsRelocksPackWhenDeleteFails(t *testing.T) {
	store := newFakeStore()
	store.compendiums = []document.Compendium{
		{ID: "frames", Label: "Frames", Kind: document.KindItem, Package: document.WorldPackage, Locked: true},
	}
	store.deleteErr = map[string]error{"world.frames": errors.New("disk full")}
	m, _, logs := newTestMigrator(store)

	report, err := m.ResetCompendiums(context.Background(), []string{"Frames"}, nil)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(report.Deleted) != 0 || len(report.Warnings) != 1 {
		t.Fatalf("report = %+v, want one warning and no deletions", report)
	}
	if len(store.compendiums) != 1 || !store.compendiums[0].Locked {
		t.Fatalf("compendiums = %+v, want frames kept locked", store.compendiums)
	}
	want := []lockEvent{{collection: "world.frames", locked: false}, {collection: "world.frames", locked: true}}
	if diff := cmp.Diff(want, store.lockEvents, cmp.AllowUnexported(lockEvent{})); diff != "" {
		t.Fatalf("lock events mismatch (-want +got):\n%s", diff)
	}
	if got := logs.FilterMessage("delete compendium").Len(); got != 1 {
		t.Fatalf("delete logs = %d, want 1", got)
	}
}

func TestCompendiumID(t *testing.T) {
	tests := map[string]string{
		"Frame":            "frame",
		"Mech Weapon":      "mech_weapon",
		"Status/Condition": "status",
		"Weapon Mod":       "weapon_mod",
	}
	for in, want := range tests {
		if got := document.CompendiumID(in); got != want {
			t.Errorf("CompendiumID(%q) = %q, want %q", in, got, want)
		}
	}
	if got := len(DefaultCompendiumSpecs()); got != 17 {
		t.Fatalf("default specs = %d, want 17", got)
	}
}

func TestMigrateCompendiumRestoresLock(t *testing.T) {
	store := newFakeStore()
	comp := document.Compendium{ID: "npcs", Label: "NPCs", Kind: document.KindActor, Package: document.WorldPackage, Locked: true}
	store.compendiums = []document.Compendium{comp}
	store.add(comp.Collection(), npc("n1", 1), npc("n2", 2))
	store.applyErr = map[string]error{"n2": errors.New("boom")}
	m, _, _ := newTestMigrator(store)

	counts, err := m.MigrateCompendium(context.Background(), comp, ModeMajor)
	if err != nil {
		t.Fatalf("migrate compendium: %v", err)
	}
	if diff := cmp.Diff(Counts{Migrated: 1, Failed: 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	want := []lockEvent{{collection: "world.npcs", locked: false}, {collection: "world.npcs", locked: true}}
	if diff := cmp.Diff(want, store.lockEvents, cmp.AllowUnexported(lockEvent{})); diff != "" {
		t.Fatalf("lock events mismatch (-want +got):\n%s", diff)
	}
	if !store.compendiums[0].Locked {
		t.Fatal("compendium left unlocked")
	}
}

func TestMigrateCompendiumRejectsForeignPack(t *testing.T) {
	store := newFakeStore()
	comp := document.Compendium{ID: "core", Label: "Core", Kind: document.KindItem, Package: "lancer"}
	store.compendiums = []document.Compendium{comp}
	m, _, _ := newTestMigrator(store)

	if _, err := m.MigrateCompendium(context.Background(), comp, ModeMinor); err == nil {
		t.Fatal("expected error for non-world compendium")
	}
}

func TestMigrateScenes(t *testing.T) {
	store := newFakeStore()
	store.add(document.WorldCollection, npc("base", 1))
	store.add(document.WorldCollection, document.Document{
		ID:   "s1",
		Kind: document.KindScene,
		Tokens: []document.Token{
			{
				ID:      "unlinked",
				ActorID: "base",
				Actor: &document.Document{
					Kind: document.KindActor,
					Data: document.Fields{"mech": map[string]any{"hp": map[string]any{"value": 4.0}}},
				},
				Bar1: &document.Bar{Attribute: "data.mech.hp.value"},
			},
			{ID: "linked", ActorID: "base", Linked: true, Bar1: &document.Bar{Attribute: "data.mech.heat.value"}},
			{ID: "current", ActorID: "base", Linked: true, Bar1: &document.Bar{Attribute: "derived.hp"}},
		},
	})
	m, _, _ := newTestMigrator(store)
	r := m.newRun(PlanMajor, "")

	counts := m.migrateScenes(context.Background(), r, document.WorldCollection, ModeMajor)
	if diff := cmp.Diff(Counts{Migrated: 1}, counts); diff != "" {
		t.Fatalf("scene counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Counts{Migrated: 2, Unchanged: 1}, r.report.Tokens); diff != "" {
		t.Fatalf("token counts mismatch (-want +got):\n%s", diff)
	}

	scene, _ := store.doc(document.WorldCollection, document.KindScene, "s1")
	unlinked := scene.Tokens[0]
	if unlinked.Bar1.Attribute != "derived.hp" {
		t.Fatalf("unlinked bar = %q", unlinked.Bar1.Attribute)
	}
	if hp, _ := unlinked.Actor.Data.Get("hp"); hp != 4.0 {
		t.Fatalf("token actor hp = %v, want 4", hp)
	}
	if unlinked.Actor.Data.Has("mech") {
		t.Fatal("token actor still has mech")
	}
	if got := scene.Tokens[1].Bar1.Attribute; got != "derived.heat" {
		t.Fatalf("linked bar = %q", got)
	}
}

func TestMigrateScenesCountsTokenFailures(t *testing.T) {
	store := newFakeStore()
	store.add(document.WorldCollection,
		document.Document{ID: "s1", Kind: document.KindScene, Tokens: []document.Token{
			{ID: "t1", Bar1: &document.Bar{Attribute: "data.heat"}},
			{ID: "t2", Bar1: &document.Bar{Attribute: "data.heat"}},
		}},
	)
	store.putTokenErr = map[string]error{"t1": errors.New("conflict")}
	m, _, _ := newTestMigrator(store)
	r := m.newRun(PlanMinor, "")

	counts := m.migrateScenes(context.Background(), r, document.WorldCollection, ModeMinor)
	if diff := cmp.Diff(Counts{Failed: 1}, counts); diff != "" {
		t.Fatalf("scene counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Counts{Migrated: 1, Failed: 1}, r.report.Tokens); diff != "" {
		t.Fatalf("token counts mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStampsNewWorld(t *testing.T) {
	store := newFakeStore()
	store.add(document.WorldCollection, npc("a1", 1))
	m, notifier, _ := newTestMigrator(store)

	report, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeStamped {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if got := store.settings[storage.SettingMigrationVersion]; got != testVersion {
		t.Fatalf("version = %q", got)
	}
	if len(store.applied) != 0 {
		t.Fatalf("applied = %v, want none", store.applied)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("notices = %+v", notifier.notices)
	}
}

func TestRunUpToDate(t *testing.T) {
	store := newFakeStore()
	store.settings[storage.SettingMigrationVersion] = testVersion
	m, notifier, _ := newTestMigrator(store)

	report, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeUpToDate || len(notifier.notices) != 0 {
		t.Fatalf("report = %+v notices = %+v", report, notifier.notices)
	}
}

func TestRunRejectsInvalidVersion(t *testing.T) {
	m, _, _ := newTestMigrator(newFakeStore())
	m.Version = "next"
	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected invalid version error")
	}
}

func TestRunMajor(t *testing.T) {
	store := newFakeStore()
	store.settings[storage.SettingMigrationVersion] = "0.1.0"
	store.compendiums = []document.Compendium{
		{ID: "npc_features", Label: "NPC Features", Kind: document.KindItem, Package: document.WorldPackage, Locked: true},
	}
	store.add(document.WorldCollection,
		npc("a1", 2),
		document.Document{ID: "p1", Kind: document.KindActor, Type: document.TypePilot, Data: document.Fields{}},
		document.Document{ID: "i1", Kind: document.KindItem, Type: document.TypeNPCTemplate, Data: document.Fields{"id": "npct_elite"}},
		document.Document{ID: "s1", Kind: document.KindScene},
	)
	m, notifier, _ := newTestMigrator(store)

	report, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeCompleted || report.Plan != "major" {
		t.Fatalf("report = %+v", report)
	}
	if report.RunID == "" {
		t.Fatal("expected run id")
	}
	if diff := cmp.Diff(Counts{Migrated: 1, Unchanged: 1}, report.Actors); diff != "" {
		t.Fatalf("actor counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Counts{Migrated: 1}, report.Items); diff != "" {
		t.Fatalf("item counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Counts{Unchanged: 1}, report.Scenes); diff != "" {
		t.Fatalf("scene counts mismatch (-want +got):\n%s", diff)
	}
	if got := store.settings[storage.SettingMigrationVersion]; got != testVersion {
		t.Fatalf("version = %q", got)
	}
	if got := store.settings[storage.SettingCoreDataVersion]; got != "3.0.0" {
		t.Fatalf("core data version = %q", got)
	}
	if diff := cmp.Diff([]string{"world.npc_features"}, report.Reset.Deleted); diff != "" {
		t.Fatalf("reset deleted mismatch (-want +got):\n%s", diff)
	}
	if len(report.Reset.Created) != 17 {
		t.Fatalf("created = %v", report.Reset.Created)
	}

	var levels []Level
	for _, n := range notifier.notices {
		levels = append(levels, n.Level)
	}
	if diff := cmp.Diff([]Level{LevelInfo, LevelInfo, LevelInfo}, levels); diff != "" {
		t.Fatalf("notice levels mismatch (-want +got):\n%s", diff)
	}
	if !notifier.notices[0].Sticky {
		t.Fatal("start notice should be sticky")
	}
}

func TestMigrateWorldWithoutRebuilder(t *testing.T) {
	store := newFakeStore()
	store.add(document.WorldCollection, npc("a1", 1))
	m, notifier, _ := newTestMigrator(store)
	m.Reference = nil

	report, err := m.MigrateWorld(context.Background())
	if err != nil {
		t.Fatalf("migrate world: %v", err)
	}
	if report.Outcome != OutcomeNeedsReferenceRebuild {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if report.Actors.Migrated != 1 {
		t.Fatalf("actors = %+v", report.Actors)
	}
	var sawWarn bool
	for _, n := range notifier.notices {
		if n.Level == LevelWarn && n.Sticky {
			sawWarn = true
		}
	}
	if !sawWarn {
		t.Fatalf("notices = %+v, want a sticky warning", notifier.notices)
	}
}

func TestRunMajorReportsRebuildFailure(t *testing.T) {
	store := newFakeStore()
	store.settings[storage.SettingMigrationVersion] = "0.2.0"
	store.add(document.WorldCollection, npc("a1", 1))
	m, notifier, logs := newTestMigrator(store)
	m.Reference = &fakeRebuilder{store: store, version: "3.0.0", err: errors.New("bad manifest")}

	report, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeRebuildFailed {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if report.Actors.Migrated != 1 {
		t.Fatalf("actors = %+v, want migration to continue", report.Actors)
	}
	if got := store.settings[storage.SettingMigrationVersion]; got != testVersion {
		t.Fatalf("version = %q", got)
	}
	var sawError bool
	for _, n := range notifier.notices {
		if n.Level == LevelError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("notices = %+v, want an error notice", notifier.notices)
	}
	if logs.FilterMessage("rebuild reference data").Len() != 1 {
		t.Fatal("expected rebuild failure log")
	}
}

func TestRunMinor(t *testing.T) {
	store := newFakeStore()
	store.settings[storage.SettingMigrationVersion] = "0.9.4"
	comp := document.Compendium{ID: "my_mechs", Label: "My Mechs", Kind: document.KindActor, Package: document.WorldPackage, Locked: true}
	foreign := document.Compendium{ID: "mechs", Label: "Mechs", Kind: document.KindActor, Package: "lancer"}
	store.compendiums = []document.Compendium{comp, foreign}
	mech := document.Document{ID: "m1", Kind: document.KindActor, Type: document.TypeMech, Data: document.Fields{"current_hp": 5.0}}
	store.add(document.WorldCollection, mech)
	store.add(comp.Collection(), mech)
	store.add(foreign.Collection(), mech)
	m, _, _ := newTestMigrator(store)

	report, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeMinorCompleted {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if diff := cmp.Diff(Counts{Migrated: 1}, report.Actors); diff != "" {
		t.Fatalf("actor counts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Counts{Migrated: 1}, report.Compendiums); diff != "" {
		t.Fatalf("compendium counts mismatch (-want +got):\n%s", diff)
	}
	inPack, _ := store.doc(comp.Collection(), document.KindActor, "m1")
	if hp, _ := inPack.Data.Get("hp"); hp != 5.0 {
		t.Fatalf("pack hp = %v", hp)
	}
	untouched, _ := store.doc(foreign.Collection(), document.KindActor, "m1")
	if !untouched.Data.Has("current_hp") {
		t.Fatal("foreign pack was migrated")
	}
	if got := store.settings[storage.SettingMigrationVersion]; got != testVersion {
		t.Fatalf("version = %q", got)
	}

	second, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Outcome != OutcomeUpToDate {
		t.Fatalf("second outcome = %s", second.Outcome)
	}
}

func TestRunFailsWhenVersionCannotBeRecorded(t *testing.T) {
	store := newFakeStore()
	store.settings[storage.SettingMigrationVersion] = "0.9.0"
	store.setErr = map[string]error{storage.SettingMigrationVersion: errors.New("read-only")}
	m, _, _ := newTestMigrator(store)

	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestMigratePilots(t *testing.T) {
	store := newFakeStore()
	store.add(document.WorldCollection,
		document.Document{ID: "p1", Kind: document.KindActor, Type: document.TypePilot},
		document.Document{ID: "p2", Kind: document.KindActor, Type: document.TypePilot},
		npc("n1", 1),
	)
	m, _, _ := newTestMigrator(store)
	importer := &fakeImporter{fail: map[string]error{"p2": errors.New("no cloud id")}}

	n, err := m.MigratePilots(context.Background(), importer)
	if err != nil {
		t.Fatalf("migrate pilots: %v", err)
	}
	if n != 1 || len(importer.imported) != 1 || importer.imported[0] != "p1" {
		t.Fatalf("imported = %d %v", n, importer.imported)
	}
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		stored string
		want   Plan
	}{
		{"", PlanStamp},
		{"1.0.0", PlanNone},
		{"v1.2.0", PlanNone},
		{"0.9.0", PlanMinor},
		{"0.9.9", PlanMinor},
		{"0.8.7", PlanMajor},
		{"garbage", PlanMajor},
	}
	for _, tt := range tests {
		if got := PlanFor(tt.stored, testVersion); got != tt.want {
			t.Errorf("PlanFor(%q) = %s, want %s", tt.stored, got, tt.want)
		}
	}
	if !ShouldMigrate("0.1.0", "1.0.0") || ShouldMigrate("1.0.0", "1.0.0") {
		t.Fatal("ShouldMigrate comparison wrong")
	}
	if ShouldRunMinor("0.8.99") || !ShouldRunMinor("0.9.0") {
		t.Fatal("ShouldRunMinor threshold wrong")
	}
}
