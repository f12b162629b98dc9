// Package document defines the Lancer world document records the migration
// pipeline reads and rewrites.
package document

import "strings"

// Kind names the top-level collection a document belongs to.
type Kind string

const (
	KindActor Kind = "Actor"
	KindItem  Kind = "Item"
	KindScene Kind = "Scene"
)

// Valid reports whether k is one of the known document kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindActor, KindItem, KindScene:
		return true
	}
	return false
}

// Actor entry types.
const (
	TypePilot      = "pilot"
	TypeMech       = "mech"
	TypeNPC        = "npc"
	TypeDeployable = "deployable"
)

// Item entry types touched by the migrators and the reference data.
const (
	TypeNPCClass    = "npc_class"
	TypeNPCTemplate = "npc_template"
	TypeNPCFeature  = "npc_feature"
	TypeTag         = "tag"
	TypeStatus      = "status"
	TypeFrame       = "frame"
	TypeMechWeapon  = "mech_weapon"
	TypeMechSystem  = "mech_system"
	TypeCoreBonus   = "core_bonus"
	TypeTalent      = "talent"
	TypeSkill       = "skill"
)

// IsActorType reports whether t is an actor type the system understands.
func IsActorType(t string) bool {
	switch t {
	case TypePilot, TypeMech, TypeNPC, TypeDeployable:
		return true
	}
	return false
}

// WorldCollection is the collection key of documents owned directly by the world.
const WorldCollection = "world"

// WorldPackage is the package name of compendiums created by the world itself.
const WorldPackage = "world"

// Document is one stored world document. Data holds the type-specific
// payload; paths in a Patch are relative to it.
type Document struct {
	ID      string     `json:"_id"`
	Kind    Kind       `json:"kind"`
	Type    string     `json:"type"`
	Name    string     `json:"name"`
	Img     string     `json:"img,omitempty"`
	Data    Fields     `json:"data"`
	Items   []Document `json:"items,omitempty"`
	Tokens  []Token    `json:"tokens,omitempty"`
	Effects []Fields   `json:"effects,omitempty"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Data = d.Data.Clone()
	if d.Items != nil {
		out.Items = make([]Document, len(d.Items))
		for i, item := range d.Items {
			out.Items[i] = item.Clone()
		}
	}
	if d.Tokens != nil {
		out.Tokens = make([]Token, len(d.Tokens))
		for i, token := range d.Tokens {
			out.Tokens[i] = token.Clone()
		}
	}
	if d.Effects != nil {
		out.Effects = make([]Fields, len(d.Effects))
		for i, effect := range d.Effects {
			out.Effects[i] = effect.Clone()
		}
	}
	return out
}

// Item returns the owned item with the given id.
func (d Document) Item(id string) (Document, bool) {
	for _, item := range d.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Document{}, false
}

// Bar is a token resource bar bound to an actor attribute path.
type Bar struct {
	Attribute string `json:"attribute"`
}

// Token is a placed actor on a scene. Unlinked tokens carry a private
// actor copy in Actor holding only the fields that differ from the base actor.
type Token struct {
	ID      string    `json:"_id"`
	Name    string    `json:"name"`
	ActorID string    `json:"actorId"`
	Linked  bool      `json:"actorLink"`
	Actor   *Document `json:"actorData,omitempty"`
	Bar1    *Bar      `json:"bar1,omitempty"`
	Bar2    *Bar      `json:"bar2,omitempty"`
	Flags   Fields    `json:"flags,omitempty"`
}

// Clone returns a deep copy of the token.
func (t Token) Clone() Token {
	out := t
	if t.Actor != nil {
		actor := t.Actor.Clone()
		out.Actor = &actor
	}
	if t.Bar1 != nil {
		bar := *t.Bar1
		out.Bar1 = &bar
	}
	if t.Bar2 != nil {
		bar := *t.Bar2
		out.Bar2 = &bar
	}
	out.Flags = t.Flags.Clone()
	return out
}

// Compendium describes one stored document pack.
type Compendium struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Kind    Kind   `json:"kind"`
	Package string `json:"package"`
	Locked  bool   `json:"locked"`
}

// Collection returns the collection key documents inside the pack are stored under.
func (c Compendium) Collection() string {
	return c.Package + "." + c.ID
}

// CompendiumID derives a pack identifier from a label: lowercased, spaces
// replaced by underscores, truncated at the first slash.
func CompendiumID(label string) string {
	id := strings.ToLower(strings.TrimSpace(label))
	id = strings.ReplaceAll(id, " ", "_")
	if idx := strings.Index(id, "/"); idx >= 0 {
		id = id[:idx]
	}
	return id
}

// WorldOwned reports whether the pack belongs to the world rather than a system or module.
func (c Compendium) WorldOwned() bool {
	return c.Package == WorldPackage
}

// Change is the full update computed for one document: its own patch plus
// patches for owned items keyed by item id.
type Change struct {
	Patch Patch
	Items map[string]Patch
}

// Empty reports whether applying the change would write nothing.
func (c Change) Empty() bool {
	if !c.Patch.Empty() {
		return false
	}
	for _, patch := range c.Items {
		if !patch.Empty() {
			return false
		}
	}
	return true
}

// Apply applies the change to a copy of doc and returns it. Item patches for
// items the document does not own are ignored.
func (c Change) Apply(doc Document) (Document, error) {
	out := doc.Clone()
	if out.Data == nil {
		out.Data = Fields{}
	}
	if err := c.Patch.Apply(out.Data); err != nil {
		return Document{}, err
	}
	for i := range out.Items {
		patch, ok := c.Items[out.Items[i].ID]
		if !ok {
			continue
		}
		if out.Items[i].Data == nil {
			out.Items[i].Data = Fields{}
		}
		if err := patch.Apply(out.Items[i].Data); err != nil {
			return Document{}, err
		}
	}
	return out, nil
}
