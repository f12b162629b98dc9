package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage"
)

const documentColumns = `id, kind, type, name, img, data, effects`

type rowScanner interface {
	Scan(dest ...any) error
}

// ListDocuments returns the documents of kind stored in collection.
func (s *Store) ListDocuments(ctx context.Context, collection string, kind document.Kind) ([]document.Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	docs, err := s.queryDocuments(ctx, collection, kind)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	for i := range docs {
		if err := loadChildren(ctx, s.sqlDB, collection, &docs[i]); err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
	}
	return docs, nil
}

func (s *Store) queryDocuments(ctx context.Context, collection string, kind document.Kind) ([]document.Document, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+documentColumns+`
		   FROM documents
		  WHERE collection = ? AND kind = ?
		  ORDER BY position ASC, id ASC`,
		collection,
		string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument returns one document with its children.
func (s *Store) GetDocument(ctx context.Context, collection string, kind document.Kind, id string) (document.Document, error) {
	if err := s.ready(ctx); err != nil {
		return document.Document{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return document.Document{}, fmt.Errorf("document id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection = ? AND kind = ? AND id = ?`,
		collection,
		string(kind),
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Document{}, storage.ErrNotFound
		}
		return document.Document{}, fmt.Errorf("get document: %w", err)
	}
	if err := loadChildren(ctx, s.sqlDB, collection, &doc); err != nil {
		return document.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// PutDocument inserts or replaces a document and its children. New
// documents are appended to the collection order.
func (s *Store) PutDocument(ctx context.Context, collection string, doc document.Document) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if !doc.Kind.Valid() {
		return fmt.Errorf("document kind %q is invalid", doc.Kind)
	}
	data, err := encodeJSON(nonNilFields(doc.Data))
	if err != nil {
		return fmt.Errorf("encode document data: %w", err)
	}
	effects, err := encodeJSON(nonNilEffects(doc.Effects))
	if err != nil {
		return fmt.Errorf("encode document effects: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkWritable(ctx, tx, collection); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, kind, id, type, name, img, data, effects, position, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?,
			         (SELECT COALESCE(MAX(position), 0) + 1 FROM documents WHERE collection = ? AND kind = ?),
			         ?)
			 ON CONFLICT (collection, kind, id) DO UPDATE SET
			   type = excluded.type,
			   name = excluded.name,
			   img = excluded.img,
			   data = excluded.data,
			   effects = excluded.effects,
			   updated_at = excluded.updated_at`,
			collection, string(doc.Kind), doc.ID, doc.Type, doc.Name, doc.Img, data, effects,
			collection, string(doc.Kind),
			s.nowMillis(),
		); err != nil {
			return fmt.Errorf("put document: %w", err)
		}
		switch doc.Kind {
		case document.KindActor:
			return replaceItems(ctx, tx, collection, doc.ID, doc.Items)
		case document.KindScene:
			return replaceTokens(ctx, tx, collection, doc.ID, doc.Tokens)
		}
		return nil
	})
}

// ApplyChange patches a document and its owned items atomically. Item
// patches for items the document does not own are ignored.
func (s *Store) ApplyChange(ctx context.Context, collection string, kind document.Kind, id string, change document.Change) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if change.Empty() {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkWritable(ctx, tx, collection); err != nil {
			return err
		}
		var text string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND kind = ? AND id = ?`,
			collection, string(kind), id,
		).Scan(&text)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load document %s: %w", id, err)
		}
		if !change.Patch.Empty() {
			updated, err := patchJSON(text, change.Patch)
			if err != nil {
				return fmt.Errorf("patch document %s: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND kind = ? AND id = ?`,
				updated, s.nowMillis(), collection, string(kind), id,
			); err != nil {
				return fmt.Errorf("update document %s: %w", id, err)
			}
		}
		for _, itemID := range sortedKeys(change.Items) {
			if err := patchItem(ctx, tx, collection, id, itemID, change.Items[itemID]); err != nil {
				return err
			}
		}
		return nil
	})
}

func patchItem(ctx context.Context, tx *sql.Tx, collection, ownerID, itemID string, patch document.Patch) error {
	if patch.Empty() {
		return nil
	}
	var text string
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM owned_items WHERE collection = ? AND owner_id = ? AND id = ?`,
		collection, ownerID, itemID,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}
	updated, err := patchJSON(text, patch)
	if err != nil {
		return fmt.Errorf("patch item %s: %w", itemID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE owned_items SET data = ? WHERE collection = ? AND owner_id = ? AND id = ?`,
		updated, collection, ownerID, itemID,
	); err != nil {
		return fmt.Errorf("update item %s: %w", itemID, err)
	}
	return nil
}

// ApplyTokenActorChange patches the private actor of an unlinked token.
func (s *Store) ApplyTokenActorChange(ctx context.Context, collection string, sceneID string, tokenID string, change document.Change) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if change.Empty() {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkWritable(ctx, tx, collection); err != nil {
			return err
		}
		var actorData sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT actor_data FROM tokens WHERE collection = ? AND scene_id = ? AND id = ?`,
			collection, sceneID, tokenID,
		).Scan(&actorData)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load token %s: %w", tokenID, err)
		}
		if !actorData.Valid {
			return fmt.Errorf("token %s has no private actor", tokenID)
		}
		var actor document.Document
		if err := json.Unmarshal([]byte(actorData.String), &actor); err != nil {
			return fmt.Errorf("decode token %s actor: %w", tokenID, err)
		}
		updated, err := change.Apply(actor)
		if err != nil {
			return fmt.Errorf("patch token %s actor: %w", tokenID, err)
		}
		encoded, err := encodeJSON(updated)
		if err != nil {
			return fmt.Errorf("encode token %s actor: %w", tokenID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tokens SET actor_data = ? WHERE collection = ? AND scene_id = ? AND id = ?`,
			encoded, collection, sceneID, tokenID,
		); err != nil {
			return fmt.Errorf("update token %s: %w", tokenID, err)
		}
		return nil
	})
}

// PutToken replaces one existing token of a scene.
func (s *Store) PutToken(ctx context.Context, collection string, sceneID string, token document.Token) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	cols, err := tokenColumns(token)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkWritable(ctx, tx, collection); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE tokens
			    SET name = ?, actor_id = ?, linked = ?, actor_data = ?, bar1 = ?, bar2 = ?, flags = ?
			  WHERE collection = ? AND scene_id = ? AND id = ?`,
			token.Name, token.ActorID, token.Linked, cols.actor, cols.bar1, cols.bar2, cols.flags,
			collection, sceneID, token.ID,
		)
		if err != nil {
			return fmt.Errorf("put token %s: %w", token.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("put token %s: %w", token.ID, err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// DeleteCollection removes every document stored under collection.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkWritable(ctx, tx, collection); err != nil {
			return err
		}
		return deleteCollection(ctx, tx, collection)
	})
}

func deleteCollection(ctx context.Context, q queryer, collection string) error {
	for _, table := range []string{"tokens", "owned_items", "documents"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("delete %s in %s: %w", table, collection, err)
		}
	}
	return nil
}

func scanDocument(row rowScanner) (document.Document, error) {
	var (
		doc     document.Document
		kind    string
		data    string
		effects string
	)
	if err := row.Scan(&doc.ID, &kind, &doc.Type, &doc.Name, &doc.Img, &data, &effects); err != nil {
		return document.Document{}, err
	}
	doc.Kind = document.Kind(kind)
	fields, err := decodeFields(data)
	if err != nil {
		return document.Document{}, fmt.Errorf("decode document %s data: %w", doc.ID, err)
	}
	doc.Data = fields
	if strings.TrimSpace(effects) != "" && effects != "[]" {
		if err := json.Unmarshal([]byte(effects), &doc.Effects); err != nil {
			return document.Document{}, fmt.Errorf("decode document %s effects: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func loadChildren(ctx context.Context, q queryer, collection string, doc *document.Document) error {
	switch doc.Kind {
	case document.KindActor:
		items, err := loadItems(ctx, q, collection, doc.ID)
		if err != nil {
			return err
		}
		doc.Items = items
	case document.KindScene:
		tokens, err := loadTokens(ctx, q, collection, doc.ID)
		if err != nil {
			return err
		}
		doc.Tokens = tokens
	}
	return nil
}

func loadItems(ctx context.Context, q queryer, collection, ownerID string) ([]document.Document, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, type, name, img, data FROM owned_items
		  WHERE collection = ? AND owner_id = ?
		  ORDER BY position ASC`,
		collection, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("load items of %s: %w", ownerID, err)
	}
	defer rows.Close()

	var items []document.Document
	for rows.Next() {
		item := document.Document{Kind: document.KindItem}
		var data string
		if err := rows.Scan(&item.ID, &item.Type, &item.Name, &item.Img, &data); err != nil {
			return nil, fmt.Errorf("load items of %s: %w", ownerID, err)
		}
		fields, err := decodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("decode item %s data: %w", item.ID, err)
		}
		item.Data = fields
		items = append(items, item)
	}
	return items, rows.Err()
}

func loadTokens(ctx context.Context, q queryer, collection, sceneID string) ([]document.Token, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, actor_id, linked, actor_data, bar1, bar2, flags FROM tokens
		  WHERE collection = ? AND scene_id = ?
		  ORDER BY position ASC`,
		collection, sceneID,
	)
	if err != nil {
		return nil, fmt.Errorf("load tokens of %s: %w", sceneID, err)
	}
	defer rows.Close()

	var tokens []document.Token
	for rows.Next() {
		var (
			token      document.Token
			actorData  sql.NullString
			bar1, bar2 sql.NullString
			flags      string
		)
		if err := rows.Scan(&token.ID, &token.Name, &token.ActorID, &token.Linked, &actorData, &bar1, &bar2, &flags); err != nil {
			return nil, fmt.Errorf("load tokens of %s: %w", sceneID, err)
		}
		if actorData.Valid {
			var actor document.Document
			if err := json.Unmarshal([]byte(actorData.String), &actor); err != nil {
				return nil, fmt.Errorf("decode token %s actor: %w", token.ID, err)
			}
			token.Actor = &actor
		}
		if token.Bar1, err = decodeBar(bar1); err != nil {
			return nil, fmt.Errorf("decode token %s bar1: %w", token.ID, err)
		}
		if token.Bar2, err = decodeBar(bar2); err != nil {
			return nil, fmt.Errorf("decode token %s bar2: %w", token.ID, err)
		}
		if token.Flags, err = decodeFields(flags); err != nil {
			return nil, fmt.Errorf("decode token %s flags: %w", token.ID, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func replaceItems(ctx context.Context, tx *sql.Tx, collection, ownerID string, items []document.Document) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM owned_items WHERE collection = ? AND owner_id = ?`, collection, ownerID,
	); err != nil {
		return fmt.Errorf("clear items of %s: %w", ownerID, err)
	}
	for i, item := range items {
		data, err := encodeJSON(nonNilFields(item.Data))
		if err != nil {
			return fmt.Errorf("encode item %s: %w", item.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO owned_items (collection, owner_id, id, type, name, img, data, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			collection, ownerID, item.ID, item.Type, item.Name, item.Img, data, i,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("item %s of %s: %w", item.ID, ownerID, storage.ErrAlreadyExists)
			}
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}
	return nil
}

func replaceTokens(ctx context.Context, tx *sql.Tx, collection, sceneID string, tokens []document.Token) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tokens WHERE collection = ? AND scene_id = ?`, collection, sceneID,
	); err != nil {
		return fmt.Errorf("clear tokens of %s: %w", sceneID, err)
	}
	for i, token := range tokens {
		cols, err := tokenColumns(token)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tokens (collection, scene_id, id, name, actor_id, linked, actor_data, bar1, bar2, flags, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			collection, sceneID, token.ID, token.Name, token.ActorID, token.Linked,
			cols.actor, cols.bar1, cols.bar2, cols.flags, i,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("token %s of %s: %w", token.ID, sceneID, storage.ErrAlreadyExists)
			}
			return fmt.Errorf("insert token %s: %w", token.ID, err)
		}
	}
	return nil
}

type encodedToken struct {
	actor, bar1, bar2 sql.NullString
	flags             string
}

func tokenColumns(token document.Token) (encodedToken, error) {
	var out encodedToken
	if strings.TrimSpace(token.ID) == "" {
		return out, fmt.Errorf("token id is required")
	}
	if token.Actor != nil {
		text, err := encodeJSON(token.Actor)
		if err != nil {
			return out, fmt.Errorf("encode token %s actor: %w", token.ID, err)
		}
		out.actor = sql.NullString{String: text, Valid: true}
	}
	for _, bar := range []struct {
		src *document.Bar
		dst *sql.NullString
	}{{token.Bar1, &out.bar1}, {token.Bar2, &out.bar2}} {
		if bar.src == nil {
			continue
		}
		text, err := encodeJSON(bar.src)
		if err != nil {
			return out, fmt.Errorf("encode token %s bar: %w", token.ID, err)
		}
		*bar.dst = sql.NullString{String: text, Valid: true}
	}
	flags, err := encodeJSON(nonNilFields(token.Flags))
	if err != nil {
		return out, fmt.Errorf("encode token %s flags: %w", token.ID, err)
	}
	out.flags = flags
	return out, nil
}

func decodeBar(text sql.NullString) (*document.Bar, error) {
	if !text.Valid {
		return nil, nil
	}
	var bar document.Bar
	if err := json.Unmarshal([]byte(text.String), &bar); err != nil {
		return nil, err
	}
	return &bar, nil
}

func patchJSON(text string, patch document.Patch) (string, error) {
	fields, err := decodeFields(text)
	if err != nil {
		return "", err
	}
	if err := patch.Apply(fields); err != nil {
		return "", err
	}
	return encodeJSON(fields)
}

func nonNilFields(fields document.Fields) document.Fields {
	if fields == nil {
		return document.Fields{}
	}
	return fields
}

func nonNilEffects(effects []document.Fields) []document.Fields {
	if effects == nil {
		return []document.Fields{}
	}
	return effects
}

func sortedKeys(patches map[string]document.Patch) []string {
	keys := make([]string, 0, len(patches))
	for key := range patches {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
