// Package storage defines persistence contracts for Lancer world state:
// documents, compendium packs and system settings.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrReadOnly indicates the record belongs to a package the world cannot modify.
	ErrReadOnly = errors.New("record is read-only")
	// ErrLocked indicates a write against a locked compendium.
	ErrLocked = errors.New("compendium is locked")
)

// Setting keys owned by the system.
const (
	SettingMigrationVersion = "lancer.systemMigrationVersion"
	SettingCoreDataVersion  = "lancer.coreDataVersion"
	SettingInstalledLCPs    = "lancer.installedLCPs"
)

// DocumentStore persists documents grouped by collection. The world's own
// documents live in document.WorldCollection; compendium contents live in
// the compendium's Collection().
type DocumentStore interface {
	// ListDocuments returns the documents of kind in collection, in stored
	// order, with owned items, tokens and effects populated.
	ListDocuments(ctx context.Context, collection string, kind document.Kind) ([]document.Document, error)
	GetDocument(ctx context.Context, collection string, kind document.Kind, id string) (document.Document, error)
	// PutDocument inserts or replaces a document together with its owned
	// items, tokens and effects.
	PutDocument(ctx context.Context, collection string, doc document.Document) error
	// ApplyChange applies a document patch and its owned-item patches in one
	// transaction.
	ApplyChange(ctx context.Context, collection string, kind document.Kind, id string, change document.Change) error
	// ApplyTokenActorChange applies a change to an unlinked token's private actor.
	ApplyTokenActorChange(ctx context.Context, collection string, sceneID string, tokenID string, change document.Change) error
	// PutToken replaces one token of a scene.
	PutToken(ctx context.Context, collection string, sceneID string, token document.Token) error
	// DeleteCollection removes every document stored under collection.
	DeleteCollection(ctx context.Context, collection string) error
}

// CompendiumStore persists compendium pack metadata.
type CompendiumStore interface {
	ListCompendiums(ctx context.Context) ([]document.Compendium, error)
	GetCompendium(ctx context.Context, collection string) (document.Compendium, error)
	// CreateCompendium returns ErrAlreadyExists when the collection is taken.
	CreateCompendium(ctx context.Context, compendium document.Compendium) error
	// DeleteCompendium removes the pack and its contents. Locked packs
	// return ErrLocked.
	DeleteCompendium(ctx context.Context, collection string) error
	// SetCompendiumLocked changes the lock state. Packs outside the world
	// package return ErrReadOnly.
	SetCompendiumLocked(ctx context.Context, collection string, locked bool) error
}

// SettingsStore persists system settings as strings.
type SettingsStore interface {
	// GetSetting returns ErrNotFound when the key was never written.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key string, value string) error
}

// Store is the combined world store.
type Store interface {
	DocumentStore
	CompendiumStore
	SettingsStore
	Close() error
}
