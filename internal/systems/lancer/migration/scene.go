package migration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// migrateScenes migrates the private actor of every unlinked token, then
// remaps every token's bars. Tokens are visited in stored order.
func (m *Migrator) migrateScenes(ctx context.Context, r *run, collection string, mode Mode) Counts {
	ctx, span := tracer.Start(ctx, "migration.scenes")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.String("mode", mode.String()))

	var counts Counts
	scenes, err := m.Documents.ListDocuments(ctx, collection, document.KindScene)
	if err != nil {
		r.logger.Error("list scenes", zap.String("collection", collection), zap.Error(err))
		r.warn(fmt.Sprintf("list scenes in %s: %v", collection, err))
		return counts
	}
	for _, scene := range scenes {
		tokens := m.migrateSceneTokens(ctx, r, collection, scene, mode)
		r.report.Tokens.add(tokens)
		switch {
		case tokens.Failed > 0:
			counts.Failed++
		case tokens.Migrated > 0:
			counts.Migrated++
		default:
			counts.Unchanged++
		}
	}
	return counts
}

func (m *Migrator) migrateSceneTokens(ctx context.Context, r *run, collection string, scene document.Document, mode Mode) Counts {
	var counts Counts
	for _, token := range scene.Tokens {
		logger := r.logger.With(
			zap.String("collection", collection),
			zap.String("scene_id", scene.ID),
			zap.String("token_id", token.ID),
		)
		changed := false
		failed := false

		if !token.Linked && token.Actor != nil {
			actor := m.resolveTokenActor(ctx, collection, token)
			change, failures := MigrateActor(actor, mode)
			m.logItemFailures(r, collection, actor.ID, failures)
			if !change.Empty() {
				if err := m.Documents.ApplyTokenActorChange(ctx, collection, scene.ID, token.ID, change); err != nil {
					logger.Error("migrate token actor", zap.Error(err))
					r.warn(fmt.Sprintf("Scene %s token %s actor: %v", scene.ID, token.ID, err))
					failed = true
				} else if updated, err := change.Apply(*token.Actor); err == nil {
					token.Actor = &updated
					changed = true
				}
			}
		}

		if next, ok := MigrateToken(token); ok {
			if err := m.Documents.PutToken(ctx, collection, scene.ID, next); err != nil {
				logger.Error("migrate token", zap.Error(err))
				r.warn(fmt.Sprintf("Scene %s token %s: %v", scene.ID, token.ID, err))
				failed = true
			} else {
				changed = true
			}
		}

		switch {
		case failed:
			counts.Failed++
		case changed:
			counts.Migrated++
		default:
			counts.Unchanged++
		}
	}
	return counts
}

// resolveTokenActor returns the token's private actor with its type filled
// from the base actor when the overlay does not carry one.
func (m *Migrator) resolveTokenActor(ctx context.Context, collection string, token document.Token) document.Document {
	actor := *token.Actor
	if actor.Type != "" || token.ActorID == "" {
		return actor
	}
	for _, c := range []string{collection, document.WorldCollection} {
		base, err := m.Documents.GetDocument(ctx, c, document.KindActor, token.ActorID)
		if err == nil {
			actor.Type = base.Type
			return actor
		}
		if c == document.WorldCollection {
			break
		}
	}
	return actor
}
