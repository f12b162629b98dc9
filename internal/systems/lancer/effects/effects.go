// Package effects interprets Lancer active effects stored on actors and
// their owned items.
package effects

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/louisbranch/lancer-system/internal/platform/i18n/catalog"
	"github.com/louisbranch/lancer-system/internal/platform/logging"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// TargetType limits which actors an effect applies to.
type TargetType string

const (
	TargetPilot          TargetType = "pilot"
	TargetMech           TargetType = "mech"
	TargetNPC            TargetType = "npc"
	TargetDeployable     TargetType = "deployable"
	TargetOnlyDeployable TargetType = "only_deployable"
	TargetOnlyDrone      TargetType = "only_drone"
	TargetMechAndNPC     TargetType = "mech_and_npc"
)

// Deployable subtypes stored in a deployable's data.type.
const (
	DeployableTypeDeployable = "Deployable"
	DeployableTypeDrone      = "Drone"
)

// Change modes beyond the host's built-in ones.
const (
	ModeSetJSON    = 11
	ModeAppendJSON = 12
)

// Flags are the system-owned effect flags.
type Flags struct {
	// Ephemeral effects are regenerated from their source item.
	Ephemeral  bool       `json:"ephemeral,omitempty"`
	TargetType TargetType `json:"target_type,omitempty"`
	// DeepOrigin keeps the original source of an effect passed down from a
	// parent actor.
	DeepOrigin string `json:"deep_origin,omitempty"`
	StatusType string `json:"status_type,omitempty"`
}

// Change is one attribute modification.
type Change struct {
	Key   string `json:"key"`
	Mode  int    `json:"mode"`
	Value string `json:"value"`
}

// Effect is a decoded active effect.
type Effect struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Origin   string   `json:"origin,omitempty"`
	Disabled bool     `json:"disabled"`
	Changes  []Change `json:"changes,omitempty"`
	Flags    Flags    `json:"-"`
}

type rawEffect struct {
	Effect
	Label    string `json:"label"`
	RawFlags struct {
		Lancer Flags `json:"lancer"`
	} `json:"flags"`
}

// Decode reads an effect from its stored form. Older effects carry their
// name as label.
func Decode(fields document.Fields) (Effect, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return Effect{}, fmt.Errorf("encode effect: %w", err)
	}
	var decoded rawEffect
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Effect{}, fmt.Errorf("decode effect: %w", err)
	}
	effect := decoded.Effect
	if effect.Name == "" {
		effect.Name = decoded.Label
	}
	effect.Flags = decoded.RawFlags.Lancer
	return effect, nil
}

// ActorEffects decodes the effects on actor followed by those on its owned
// items, in stored order.
func ActorEffects(actor document.Document) ([]Effect, error) {
	var out []Effect
	add := func(list []document.Fields) error {
		for _, fields := range list {
			effect, err := Decode(fields)
			if err != nil {
				return err
			}
			out = append(out, effect)
		}
		return nil
	}
	if err := add(actor.Effects); err != nil {
		return nil, err
	}
	for _, item := range actor.Items {
		if err := add(item.Effects); err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
	}
	return out, nil
}

// AffectsActor reports whether effect applies to actor rather than only
// passing through it to descendants.
func AffectsActor(effect Effect, actor *document.Document) bool {
	if effect.Flags.TargetType == "" {
		return true
	}
	if actor == nil {
		return false
	}
	switch effect.Flags.TargetType {
	case TargetPilot:
		return actor.Type == document.TypePilot
	case TargetMech:
		return actor.Type == document.TypeMech
	case TargetNPC:
		return actor.Type == document.TypeNPC
	case TargetDeployable:
		return actor.Type == document.TypeDeployable
	case TargetMechAndNPC:
		return actor.Type == document.TypeMech || actor.Type == document.TypeNPC
	case TargetOnlyDeployable:
		return isDeployableOfType(actor, DeployableTypeDeployable)
	case TargetOnlyDrone:
		return isDeployableOfType(actor, DeployableTypeDrone)
	default:
		return false
	}
}

func isDeployableOfType(actor *document.Document, subtype string) bool {
	if actor.Type != document.TypeDeployable {
		return false
	}
	got, _ := actor.Data.String("type")
	return got == subtype
}

// Category names, in display order.
const (
	CategoryPassive     = "passive"
	CategoryInherited   = "inherited"
	CategoryDisabled    = "disabled"
	CategoryPassthrough = "passthrough"
)

// Indexed is an effect with its position among all of the actor's effects.
type Indexed struct {
	Index  int
	Effect Effect
}

// Category groups effects for display.
type Category struct {
	Type    string
	Label   string
	Effects []Indexed
}

// Categorize sorts the actor's effects into passive, inherited, disabled
// and passthrough groups.
func Categorize(actor document.Document, l *catalog.Localizer) ([]Category, error) {
	effects, err := ActorEffects(actor)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = catalog.Default().Localizer(catalog.BaseLocale)
	}
	categories := []Category{
		{Type: CategoryPassive, Label: l.Localize("lancer.effect.categories.passive", "Passive Effects")},
		{Type: CategoryInherited, Label: l.Localize("lancer.effect.categories.inherited", "Inherited Effects")},
		{Type: CategoryDisabled, Label: l.Localize("lancer.effect.categories.disabled", "Disabled Effects")},
		{Type: CategoryPassthrough, Label: l.Localize("lancer.effect.categories.passthrough", "Passthrough Effects")},
	}
	for i, effect := range effects {
		slot := 0
		switch {
		case !AffectsActor(effect, &actor):
			slot = 3
		case effect.Disabled:
			slot = 2
		case effect.Flags.DeepOrigin != "":
			slot = 1
		}
		categories[slot].Effects = append(categories[slot].Effects, Indexed{Index: i, Effect: effect})
	}
	return categories, nil
}

// JSONApplier applies the JSON change modes. Parsed values are cached by
// their source text.
type JSONApplier struct {
	Logger *zap.Logger

	mu    sync.Mutex
	cache map[string]any
}

func (a *JSONApplier) parse(value string) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if parsed, ok := a.cache[value]; ok {
		return parsed, nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return nil, err
	}
	if a.cache == nil {
		a.cache = map[string]any{}
	}
	a.cache[value] = parsed
	return parsed, nil
}

// Apply applies change to target when it uses a JSON mode and reports
// whether target was modified. Unparseable values and append targets that
// are not lists are logged and skipped.
func (a *JSONApplier) Apply(target document.Fields, change Change) bool {
	if change.Mode != ModeSetJSON && change.Mode != ModeAppendJSON {
		return false
	}
	logger := logging.OrNop(a.Logger)
	parsed, err := a.parse(change.Value)
	if err != nil {
		logger.Warn("JSON effect parse failed", zap.String("key", change.Key), zap.String("value", change.Value), zap.Error(err))
		return false
	}

	if change.Mode == ModeSetJSON {
		if err := target.Set(change.Key, document.CloneValue(parsed)); err != nil {
			logger.Warn("JSON effect set failed", zap.String("key", change.Key), zap.Error(err))
			return false
		}
		return true
	}

	current, ok := target.Get(change.Key)
	list, isList := current.([]any)
	if !ok || !isList {
		logger.Warn("JSON effect append target is not a list", zap.String("key", change.Key))
		return false
	}
	appended := append(append([]any(nil), list...), document.CloneValue(parsed))
	if err := target.Set(change.Key, appended); err != nil {
		logger.Warn("JSON effect append failed", zap.String("key", change.Key), zap.Error(err))
		return false
	}
	return true
}
