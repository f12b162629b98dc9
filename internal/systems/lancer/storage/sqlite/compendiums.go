package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

// ListCompendiums returns packs in creation order.
func (s *Store) ListCompendiums(ctx context.Context) ([]document.Compendium, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, package, label, kind, locked FROM compendiums ORDER BY created_at ASC, rowid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list compendiums: %w", err)
	}
	defer rows.Close()

	var out []document.Compendium
	for rows.Next() {
		compendium, err := scanCompendium(rows)
		if err != nil {
			return nil, fmt.Errorf("list compendiums: %w", err)
		}
		out = append(out, compendium)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list compendiums: %w", err)
	}
	return out, nil
}

// GetCompendium returns one pack by collection key.
func (s *Store) GetCompendium(ctx context.Context, collection string) (document.Compendium, error) {
	if err := s.ready(ctx); err != nil {
		return document.Compendium{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, package, label, kind, locked FROM compendiums WHERE collection = ?`,
		strings.TrimSpace(collection),
	)
	compendium, err := scanCompendium(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Compendium{}, storage.ErrNotFound
		}
		return document.Compendium{}, fmt.Errorf("get compendium: %w", err)
	}
	return compendium, nil
}

// CreateCompendium inserts a new pack. The package defaults to the world.
func (s *Store) CreateCompendium(ctx context.Context, compendium document.Compendium) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	compendium.ID = strings.TrimSpace(compendium.ID)
	compendium.Label = strings.TrimSpace(compendium.Label)
	compendium.Package = strings.TrimSpace(compendium.Package)
	if compendium.ID == "" {
		return fmt.Errorf("compendium id is required")
	}
	if compendium.Label == "" {
		return fmt.Errorf("compendium label is required")
	}
	if !compendium.Kind.Valid() {
		return fmt.Errorf("compendium kind %q is invalid", compendium.Kind)
	}
	if compendium.Package == "" {
		compendium.Package = document.WorldPackage
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO compendiums (collection, id, package, label, kind, locked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		compendium.Collection(),
		compendium.ID,
		compendium.Package,
		compendium.Label,
		string(compendium.Kind),
		compendium.Locked,
		s.nowMillis(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create compendium: %w", err)
	}
	return nil
}

// DeleteCompendium removes an unlocked pack and its contents.
func (s *Store) DeleteCompendium(ctx context.Context, collection string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	collection = strings.TrimSpace(collection)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkWritable(ctx, tx, collection); err != nil {
			return err
		}
		if err := deleteCollection(ctx, tx, collection); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM compendiums WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("delete compendium: %w", err)
		}
		return nil
	})
}

// SetCompendiumLocked changes the lock state of a world pack.
func (s *Store) SetCompendiumLocked(ctx context.Context, collection string, locked bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	collection = strings.TrimSpace(collection)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var pkg string
		err := tx.QueryRowContext(ctx, `SELECT package FROM compendiums WHERE collection = ?`, collection).Scan(&pkg)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("set compendium lock: %w", err)
		}
		if pkg != document.WorldPackage {
			return fmt.Errorf("compendium %s: %w", collection, storage.ErrReadOnly)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE compendiums SET locked = ? WHERE collection = ?`, locked, collection,
		); err != nil {
			return fmt.Errorf("set compendium lock: %w", err)
		}
		return nil
	})
}

func scanCompendium(row rowScanner) (document.Compendium, error) {
	var (
		compendium document.Compendium
		kind       string
	)
	if err := row.Scan(&compendium.ID, &compendium.Package, &compendium.Label, &kind, &compendium.Locked); err != nil {
		return document.Compendium{}, err
	}
	compendium.Kind = document.Kind(kind)
	return compendium, nil
}
