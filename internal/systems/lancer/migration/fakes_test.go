package migration

import (
	"context"
	"sync"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

// fakeStore is an in-memory storage.Store with error injection.
type fakeStore struct {
	mu sync.Mutex

	docs        map[string][]document.Document // collection/kind -> docs
	compendiums []document.Compendium
	settings    map[string]string

	applyErr    map[string]error // doc id -> ApplyChange error
	putTokenErr map[string]error // token id -> PutToken error
	unlockErr   map[string]error // collection -> unlock error
	deleteErr   map[string]error // collection -> DeleteCompendium error
	setErr      map[string]error // setting key -> SetSetting error

	applied    []string // doc ids passed to ApplyChange, in order
	lockEvents []lockEvent
}

type lockEvent struct {
	collection string
	locked     bool
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string][]document.Document{},
		settings: map[string]string{},
	}
}

func docKey(collection string, kind document.Kind) string {
	return collection + "/" + string(kind)
}

func (f *fakeStore) add(collection string, docs ...document.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range docs {
		key := docKey(collection, doc.Kind)
		f.docs[key] = append(f.docs[key], doc.Clone())
	}
}

func (f *fakeStore) doc(collection string, kind document.Kind, id string) (document.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs[docKey(collection, kind)] {
		if doc.ID == id {
			return doc.Clone(), true
		}
	}
	return document.Document{}, false
}

func (f *fakeStore) ListDocuments(_ context.Context, collection string, kind document.Kind) ([]document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []document.Document
	for _, doc := range f.docs[docKey(collection, kind)] {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (f *fakeStore) GetDocument(_ context.Context, collection string, kind document.Kind, id string) (document.Document, error) {
	doc, ok := f.doc(collection, kind, id)
	if !ok {
		return document.Document{}, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) PutDocument(_ context.Context, collection string, doc document.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := docKey(collection, doc.Kind)
	for i, existing := range f.docs[key] {
		if existing.ID == doc.ID {
			f.docs[key][i] = doc.Clone()
			return nil
		}
	}
	f.docs[key] = append(f.docs[key], doc.Clone())
	return nil
}

func (f *fakeStore) ApplyChange(_ context.Context, collection string, kind document.Kind, id string, change document.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, id)
	if err := f.applyErr[id]; err != nil {
		return err
	}
	if err := f.checkWritable(collection); err != nil {
		return err
	}
	key := docKey(collection, kind)
	for i, doc := range f.docs[key] {
		if doc.ID != id {
			continue
		}
		updated, err := change.Apply(doc)
		if err != nil {
			return err
		}
		f.docs[key][i] = updated
		return nil
	}
	return storage.ErrNotFound
}

func (f *fakeStore) ApplyTokenActorChange(_ context.Context, collection string, sceneID string, tokenID string, change document.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateToken(collection, sceneID, tokenID, func(token *document.Token) error {
		if token.Actor == nil {
			return storage.ErrNotFound
		}
		updated, err := change.Apply(*token.Actor)
		if err != nil {
			return err
		}
		token.Actor = &updated
		return nil
	})
}

func (f *fakeStore) PutToken(_ context.Context, collection string, sceneID string, token document.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.putTokenErr[token.ID]; err != nil {
		return err
	}
	return f.updateToken(collection, sceneID, token.ID, func(existing *document.Token) error {
		*existing = token.Clone()
		return nil
	})
}

func (f *fakeStore) updateToken(collection, sceneID, tokenID string, fn func(*document.Token) error) error {
	if err := f.checkWritable(collection); err != nil {
		return err
	}
	scenes := f.docs[docKey(collection, document.KindScene)]
	for i := range scenes {
		if scenes[i].ID != sceneID {
			continue
		}
		for j := range scenes[i].Tokens {
			if scenes[i].Tokens[j].ID == tokenID {
				return fn(&scenes[i].Tokens[j])
			}
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) DeleteCollection(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, kind := range []document.Kind{document.KindActor, document.KindItem, document.KindScene} {
		delete(f.docs, docKey(collection, kind))
	}
	return nil
}

func (f *fakeStore) checkWritable(collection string) error {
	for _, comp := range f.compendiums {
		if comp.Collection() == collection && comp.Locked {
			return storage.ErrLocked
		}
	}
	return nil
}

func (f *fakeStore) ListCompendiums(context.Context) ([]document.Compendium, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]document.Compendium(nil), f.compendiums...), nil
}

func (f *fakeStore) GetCompendium(_ context.Context, collection string) (document.Compendium, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, comp := range f.compendiums {
		if comp.Collection() == collection {
			return comp, nil
		}
	}
	return document.Compendium{}, storage.ErrNotFound
}

func (f *fakeStore) CreateCompendium(_ context.Context, comp document.Compendium) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if comp.Package == "" {
		comp.Package = document.WorldPackage
	}
	for _, existing := range f.compendiums {
		if existing.Collection() == comp.Collection() {
			return storage.ErrAlreadyExists
		}
	}
	f.compendiums = append(f.compendiums, comp)
	return nil
}

func (f *fakeStore) DeleteCompendium(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[collection]; err != nil {
		return err
	}
	for i, comp := range f.compendiums {
		if comp.Collection() != collection {
			continue
		}
		if comp.Locked {
			return storage.ErrLocked
		}
		f.compendiums = append(f.compendiums[:i:i], f.compendiums[i+1:]...)
		for _, kind := range []document.Kind{document.KindActor, document.KindItem, document.KindScene} {
			delete(f.docs, docKey(collection, kind))
		}
		return nil
	}
	return storage.ErrNotFound
}

func (f *fakeStore) SetCompendiumLocked(_ context.Context, collection string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unlockErr[collection]; err != nil && !locked {
		return err
	}
	for i, comp := range f.compendiums {
		if comp.Collection() != collection {
			continue
		}
		if !comp.WorldOwned() {
			return storage.ErrReadOnly
		}
		f.compendiums[i].Locked = locked
		f.lockEvents = append(f.lockEvents, lockEvent{collection: collection, locked: locked})
		return nil
	}
	return storage.ErrNotFound
}

func (f *fakeStore) GetSetting(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.settings[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (f *fakeStore) SetSetting(_ context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setErr[key]; err != nil {
		return err
	}
	f.settings[key] = value
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeRebuilder records the core data version on Rebuild unless err is set.
type fakeRebuilder struct {
	store   *fakeStore
	version string
	err     error
	calls   int
}

func (f *fakeRebuilder) Rebuild(ctx context.Context) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.store.SetSetting(ctx, storage.SettingCoreDataVersion, f.version)
}

func (f *fakeRebuilder) Version() string { return f.version }

// recordingNotifier keeps every notice.
type recordingNotifier struct {
	notices []Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) {
	n.notices = append(n.notices, notice)
}

type fakeImporter struct {
	imported []string
	fail     map[string]error
}

func (f *fakeImporter) ImportPilot(_ context.Context, pilot document.Document) error {
	if err := f.fail[pilot.ID]; err != nil {
		return err
	}
	f.imported = append(f.imported, pilot.ID)
	return nil
}
