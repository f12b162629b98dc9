// Package reference installs the bundled Lancer core reference data into
// the world's compendium packs.
package reference

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/lancer-system/internal/platform/errors"
	"github.com/louisbranch/lancer-system/internal/platform/logging"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

//go:embed data/*.yaml
var embeddedData embed.FS

const manifestFile = "manifest.yaml"

// Dataset is a parsed reference data bundle.
type Dataset struct {
	Name    string
	Version string
	Packs   []Pack
}

// Pack is one compendium's worth of reference entries.
type Pack struct {
	Label   string
	Kind    document.Kind
	Entries []document.Document
}

// ID returns the pack identifier derived from its label.
func (p Pack) ID() string {
	return document.CompendiumID(p.Label)
}

// Collection returns the world collection the pack is installed into.
func (p Pack) Collection() string {
	return document.WorldPackage + "." + p.ID()
}

type manifest struct {
	Name    string         `yaml:"name"`
	Version string         `yaml:"version"`
	Packs   []manifestPack `yaml:"packs"`
}

type manifestPack struct {
	Label string `yaml:"label"`
	Kind  string `yaml:"kind"`
	File  string `yaml:"file"`
}

type entryFile struct {
	Entries []entry `yaml:"entries"`
}

type entry struct {
	ID   string         `yaml:"id"`
	Type string         `yaml:"type"`
	Name string         `yaml:"name"`
	Img  string         `yaml:"img"`
	Data map[string]any `yaml:"data"`
}

// Embedded parses the reference data compiled into the binary.
func Embedded() (*Dataset, error) {
	sub, err := fs.Sub(embeddedData, "data")
	if err != nil {
		return nil, fmt.Errorf("open embedded reference data: %w", err)
	}
	return Load(sub)
}

// Load parses a manifest.yaml and the entry files it lists from fsys.
func Load(fsys fs.FS) (*Dataset, error) {
	raw, err := fs.ReadFile(fsys, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("read reference manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, invalid("parse manifest: " + err.Error())
	}
	m.Version = strings.TrimSpace(m.Version)
	if m.Version == "" {
		return nil, invalid("manifest version is required")
	}

	ds := &Dataset{Name: m.Name, Version: m.Version}
	seenPacks := map[string]struct{}{}
	for _, mp := range m.Packs {
		kind := document.Kind(mp.Kind)
		if kind != document.KindActor && kind != document.KindItem {
			return nil, invalid(fmt.Sprintf("pack %q has unsupported kind %q", mp.Label, mp.Kind))
		}
		pack := Pack{Label: mp.Label, Kind: kind}
		if pack.ID() == "" {
			return nil, invalid("pack label is required")
		}
		if _, dup := seenPacks[pack.ID()]; dup {
			return nil, invalid(fmt.Sprintf("duplicate pack %q", pack.ID()))
		}
		seenPacks[pack.ID()] = struct{}{}

		entries, err := loadEntries(fsys, mp.File, kind)
		if err != nil {
			return nil, err
		}
		pack.Entries = entries
		ds.Packs = append(ds.Packs, pack)
	}
	return ds, nil
}

func loadEntries(fsys fs.FS, file string, kind document.Kind) ([]document.Document, error) {
	name := path.Clean(strings.TrimSpace(file))
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read reference entries %s: %w", name, err)
	}
	var parsed entryFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, invalid(fmt.Sprintf("parse %s: %v", name, err))
	}
	seen := map[string]struct{}{}
	docs := make([]document.Document, 0, len(parsed.Entries))
	for i, e := range parsed.Entries {
		if e.ID == "" || e.Type == "" {
			return nil, invalid(fmt.Sprintf("%s entry %d needs id and type", name, i))
		}
		if _, dup := seen[e.ID]; dup {
			return nil, invalid(fmt.Sprintf("%s has duplicate entry %q", name, e.ID))
		}
		seen[e.ID] = struct{}{}
		data := document.Fields(e.Data)
		if data == nil {
			data = document.Fields{}
		}
		docs = append(docs, document.Document{
			ID:   e.ID,
			Kind: kind,
			Type: e.Type,
			Name: e.Name,
			Img:  e.Img,
			Data: data,
		})
	}
	return docs, nil
}

func invalid(detail string) error {
	return apperrors.WithMetadata(apperrors.CodeReferenceDataInvalid, "invalid reference data: "+detail,
		map[string]string{"Detail": detail})
}

// Rebuilder installs a Dataset into a store.
type Rebuilder struct {
	Documents   storage.DocumentStore
	Compendiums storage.CompendiumStore
	Settings    storage.SettingsStore
	Logger      *zap.Logger
	Data        *Dataset
}

// NewRebuilder returns a rebuilder for ds backed by store.
func NewRebuilder(store storage.Store, ds *Dataset) *Rebuilder {
	return &Rebuilder{
		Documents:   store,
		Compendiums: store,
		Settings:    store,
		Data:        ds,
	}
}

// Version returns the core data version a successful rebuild records.
func (r *Rebuilder) Version() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.Version
}

type installedPack struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type installedIndex struct {
	Index []installedPack `json:"index"`
}

// Rebuild replaces the contents of every pack in the dataset, creating
// packs that are missing, then records the core data version. The core data
// version is only written once every pack is installed.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	if r.Data == nil {
		return apperrors.New(apperrors.CodeReferenceRebuildFailed, "no reference data loaded")
	}
	logger := logging.OrNop(r.Logger)

	for _, pack := range r.Data.Packs {
		if err := r.installPack(ctx, pack); err != nil {
			return apperrors.Wrap(apperrors.CodeReferenceRebuildFailed, "install pack "+pack.Label, err)
		}
		logger.Info("installed reference pack",
			zap.String("collection", pack.Collection()),
			zap.Int("entries", len(pack.Entries)),
		)
	}

	index, err := json.Marshal(installedIndex{Index: []installedPack{{Name: r.Data.Name, Version: r.Data.Version}}})
	if err != nil {
		return fmt.Errorf("encode installed index: %w", err)
	}
	if err := r.Settings.SetSetting(ctx, storage.SettingInstalledLCPs, string(index)); err != nil {
		return apperrors.Wrap(apperrors.CodeReferenceRebuildFailed, "record installed content packs", err)
	}
	if err := r.Settings.SetSetting(ctx, storage.SettingCoreDataVersion, r.Data.Version); err != nil {
		return apperrors.Wrap(apperrors.CodeReferenceRebuildFailed, "record core data version", err)
	}
	return nil
}

func (r *Rebuilder) installPack(ctx context.Context, pack Pack) (err error) {
	collection := pack.Collection()
	comp, err := r.Compendiums.GetCompendium(ctx, collection)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		comp = document.Compendium{ID: pack.ID(), Label: pack.Label, Kind: pack.Kind, Package: document.WorldPackage}
		if err := r.Compendiums.CreateCompendium(ctx, comp); err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("create compendium %s: %w", collection, err)
		}
	case err != nil:
		return fmt.Errorf("get compendium %s: %w", collection, err)
	}
	if comp.Kind != pack.Kind {
		return fmt.Errorf("compendium %s holds %s documents, want %s", collection, comp.Kind, pack.Kind)
	}

	if comp.Locked {
		if err := r.Compendiums.SetCompendiumLocked(ctx, collection, false); err != nil {
			return fmt.Errorf("unlock compendium %s: %w", collection, err)
		}
		defer func() {
			if lockErr := r.Compendiums.SetCompendiumLocked(context.WithoutCancel(ctx), collection, true); lockErr != nil {
				err = errors.Join(err, fmt.Errorf("relock compendium %s: %w", collection, lockErr))
			}
		}()
	}

	if err := r.Documents.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("clear compendium %s: %w", collection, err)
	}
	for _, doc := range pack.Entries {
		if err := r.Documents.PutDocument(ctx, collection, doc.Clone()); err != nil {
			return fmt.Errorf("put %s into %s: %w", doc.ID, collection, err)
		}
	}
	return nil
}
