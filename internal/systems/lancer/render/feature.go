// Package render builds HTML fragments for Lancer documents.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// NPC feature types.
const (
	FeatureReaction = "Reaction"
	FeatureSystem   = "System"
	FeatureTrait    = "Trait"
	FeatureTech     = "Tech"
	FeatureWeapon   = "Weapon"
)

const (
	tagRecharge = "tg_recharge"
	tagLimited  = "tg_limited"
	tagLoading  = "tg_loading"

	separator = `<hr class="vsep">`
)

// ErrUnsupportedFeature is returned when rendering a document that is not an
// NPC feature of a known type.
var ErrUnsupportedFeature = errors.New("unsupported npc feature")

// Renderer renders cards with localized labels.
type Renderer struct {
	Labels Labels
}

// FeatureCard renders an NPC feature card at tier using the base locale.
func FeatureCard(feature document.Document, tier int) templ.Component {
	return Renderer{}.FeatureCard(feature, tier, nil)
}

// FeatureCard renders an NPC feature card. Tier is 1-based; values below 1
// select tier 1. When actor is given, a tech feature without an attack bonus
// for the tier uses the actor's systems stat instead.
func (r Renderer) FeatureCard(feature document.Document, tier int, actor *document.Document) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if feature.Type != document.TypeNPCFeature {
			return fmt.Errorf("render %s: %w: item type %q", feature.ID, ErrUnsupportedFeature, feature.Type)
		}
		card := newCard(feature, tier)
		var body string
		switch card.featureType {
		case FeatureReaction:
			body = r.reactionBody(card)
		case FeatureSystem, FeatureTrait:
			body = r.systemTraitBody(card)
		case FeatureTech:
			body = r.techBody(card, actor)
		case FeatureWeapon:
			body = r.weaponBody(card)
		default:
			return fmt.Errorf("render %s: %w: feature type %q", feature.ID, ErrUnsupportedFeature, card.featureType)
		}
		_, err := io.WriteString(w, r.scaffold(card, body))
		return err
	})
}

// card is the decoded view of a feature document.
type card struct {
	doc         document.Document
	featureType string
	tierIndex   int
	tags        []tagRef
}

type tagRef struct {
	lid  string
	name string
	val  string
}

func newCard(feature document.Document, tier int) card {
	featureType, _ := feature.Data.String("type")
	if tier < 1 {
		tier = 1
	}
	return card{
		doc:         feature,
		featureType: featureType,
		tierIndex:   tier - 1,
		tags:        readTags(feature.Data),
	}
}

func (c card) hasTag(lid string) (tagRef, bool) {
	for _, tag := range c.tags {
		if tag.lid == lid {
			return tag, true
		}
	}
	return tagRef{}, false
}

func (c card) text(field string) string {
	value, _ := c.doc.Data.String(field)
	return value
}

// tierInt returns the tier's entry of a per-tier number list. Zero counts as
// absent.
func (c card) tierInt(field string) (int, bool) {
	raw, ok := c.doc.Data.Get(field)
	if !ok {
		return 0, false
	}
	list, ok := raw.([]any)
	if !ok || c.tierIndex >= len(list) {
		return 0, false
	}
	n, ok := toInt(list[c.tierIndex])
	return n, ok && n != 0
}

func (r Renderer) scaffold(c card, body string) string {
	slug := slugify(c.featureType)
	icon := "cci-" + slug
	if c.featureType == FeatureTech {
		icon += "-quick"
	}
	destroyed, _ := c.doc.Data.Get("destroyed")

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="set ref card lancer-%s" data-id="%s">`, attr(slug), attr(c.doc.ID))
	if destroyed == true {
		b.WriteString(`<div class="flexrow lancer-header clipped-top destroyed">`)
		fmt.Fprintf(&b, `<i class="mdi mdi-cog" title="%s"> </i>`, attr(r.Labels.lookup("lancer.feature.destroyed", "DESTROYED")))
	} else {
		b.WriteString(`<div class="flexrow lancer-header clipped-top">`)
		fmt.Fprintf(&b, `<i class="cci %s i--m i--light"> </i>`, attr(icon))
	}
	if c.featureType != FeatureWeapon {
		fmt.Fprintf(&b, `<a class="chat-flow-button" title="%s"><i class="mdi mdi-message"></i></a>`, attr(r.Labels.lookup("lancer.feature.use", "Use")))
	}
	fmt.Fprintf(&b, `<span class="minor grow">%s</span>`, templ.EscapeString(c.doc.Name))
	b.WriteString(`</div>`)
	b.WriteString(body)
	b.WriteString(`</div>`)
	return b.String()
}

func (r Renderer) reactionBody(c card) string {
	var b strings.Builder
	b.WriteString(`<div class="flexcol lancer-body">`)
	if tag, ok := c.hasTag(tagRecharge); ok {
		b.WriteString(r.chargedBox(c, tag))
	}
	b.WriteString(r.effectBox("lancer.feature.trigger", "Trigger", c.text("trigger"), true))
	b.WriteString(r.effectBox("lancer.feature.effect", "Effect", c.text("effect"), false))
	b.WriteString(r.tagList(c))
	b.WriteString(`</div>`)
	return b.String()
}

func (r Renderer) systemTraitBody(c card) string {
	var b strings.Builder
	b.WriteString(`<div class="flexcol lancer-body">`)
	if tag, ok := c.hasTag(tagLimited); ok {
		b.WriteString(r.usesIndicator(c, tag))
	}
	if tag, ok := c.hasTag(tagRecharge); ok {
		b.WriteString(r.chargedBox(c, tag))
	}
	b.WriteString(r.effectBox("lancer.feature.effect", "Effect", c.text("effect"), true))
	b.WriteString(r.tagList(c))
	b.WriteString(`</div>`)
	return b.String()
}

func (r Renderer) techBody(c card, actor *document.Document) string {
	items := []string{`<a class="roll-tech lancer-button"><i class="fas fa-dice-d20 i--m"></i></a>`}
	if bonus, ok := c.tierInt("attack_bonus"); ok {
		items = append(items, r.attackBonus(bonus, r.Labels.lookup("lancer.feature.tech_attack", "Tech Attack")))
	} else if sys, ok := actorSystems(actor); ok {
		items = append(items, r.attackBonus(sys, r.Labels.lookup("lancer.feature.attack_sys", "ATK (SYS)")))
	}
	if accuracy, ok := c.tierInt("accuracy"); ok {
		items = append(items, r.accuracy(accuracy))
	}
	if tag, ok := c.hasTag(tagRecharge); ok {
		items = append(items, r.chargedBox(c, tag))
	}

	var b strings.Builder
	b.WriteString(`<div class="lancer-body flex-col"><div class="flexrow">`)
	b.WriteString(strings.Join(items, separator))
	b.WriteString(`</div><div class="flexcol">`)
	b.WriteString(r.effectBox("lancer.feature.effect", "Effect", c.text("effect"), false))
	b.WriteString(r.tagList(c))
	b.WriteString(`</div></div>`)
	return b.String()
}

func (r Renderer) weaponBody(c card) string {
	items := []string{`<a class="roll-attack lancer-button no-grow"><i class="fas fa-dice-d20 i--m i--dark"></i></a>`}
	if bonus, ok := c.tierInt("attack_bonus"); ok {
		items = append(items, r.attackBonus(bonus, r.Labels.lookup("lancer.feature.attack", "Attack")))
	}
	if accuracy, ok := c.tierInt("accuracy"); ok {
		items = append(items, r.accuracy(accuracy))
	}
	if ranges := c.list("range"); len(ranges) > 0 {
		items = append(items, r.valueList("range", "lancer.feature.range", "Range", ranges))
	}
	if damage := c.tierList("damage"); len(damage) > 0 {
		items = append(items, r.valueList("damage", "lancer.feature.damage", "Damage", damage))
	}
	if tag, ok := c.hasTag(tagRecharge); ok {
		items = append(items, r.chargedBox(c, tag))
	}
	if _, ok := c.hasTag(tagLoading); ok {
		items = append(items, r.loadedIndicator(c))
	}

	var b strings.Builder
	b.WriteString(`<div class="lancer-body flex-col"><div class="flexrow no-wrap">`)
	b.WriteString(strings.Join(items, separator))
	b.WriteString(`</div>`)
	b.WriteString(`<div><span class="weapon-origin">`)
	b.WriteString(templ.EscapeString(r.weaponOrigin(c)))
	b.WriteString(`</span></div>`)
	b.WriteString(r.effectBox("lancer.feature.on_hit", "On Hit", c.text("on_hit"), false))
	b.WriteString(r.effectBox("lancer.feature.effect", "Effect", c.text("effect"), false))
	b.WriteString(r.tagList(c))
	b.WriteString(`</div>`)
	return b.String()
}

func (r Renderer) weaponOrigin(c card) string {
	weaponType := c.text("weapon_type")
	name, _ := c.doc.Data.String("origin.name")
	originType, _ := c.doc.Data.String("origin.type")
	origin := strings.TrimSpace(name + " " + originType)
	switch {
	case weaponType == "":
		return origin
	case origin == "":
		return weaponType
	default:
		return weaponType + " // " + origin
	}
}

func (r Renderer) effectBox(key, fallback, text string, flow bool) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	class := "effect-box"
	if flow {
		class += " chat-flow-button"
	}
	return fmt.Sprintf(`<div class="%s"><span class="effect-title clipped-bot">%s</span><span class="effect-text">%s</span></div>`,
		class, templ.EscapeString(strings.ToUpper(r.Labels.lookup(key, fallback))), templ.EscapeString(text))
}

func (r Renderer) chargedBox(c card, recharge tagRef) string {
	charged, _ := c.doc.Data.Get("charged")
	icon := "mdi-hexagon-outline"
	if charged == true {
		icon = "mdi-hexagon-slice-6"
	}
	n, _ := strconv.Atoi(recharge.val)
	return fmt.Sprintf(`<div class="clipped card charge-box"><span>%s</span><i class="mdi %s" title="%s"></i></div>`,
		templ.EscapeString(r.Labels.localizer().Localize("lancer.feature.recharge", "Recharge %d+", n)),
		icon, attr(r.Labels.lookup("lancer.feature.charged", "Charged")))
}

func (r Renderer) usesIndicator(c card, limited tagRef) string {
	value, _ := c.doc.Data.Number("uses.value")
	limit, ok := c.doc.Data.Number("uses.max")
	if !ok || limit == 0 {
		n, _ := strconv.Atoi(limited.val)
		limit = float64(n)
	}
	return fmt.Sprintf(`<div class="clipped card limited-card"><span>%s</span><span class="uses">%d/%d</span></div>`,
		templ.EscapeString(r.Labels.lookup("lancer.feature.uses", "Uses")), int(value), int(limit))
}

func (r Renderer) loadedIndicator(c card) string {
	loaded, _ := c.doc.Data.Get("loaded")
	icon := "mdi-hexagon-outline"
	if loaded == true {
		icon = "mdi-hexagon-slice-6"
	}
	return fmt.Sprintf(`<div class="clipped card loaded-box"><span>%s</span><i class="mdi %s"></i></div>`,
		templ.EscapeString(r.Labels.lookup("lancer.feature.loaded", "Loaded")), icon)
}

func (r Renderer) attackBonus(bonus int, label string) string {
	return fmt.Sprintf(`<div class="flexrow attack-bonus"><i class="cci cci-reticule i--m i--dark"></i><span class="medium">%s %+d</span></div>`,
		templ.EscapeString(strings.ToUpper(label)), bonus)
}

func (r Renderer) accuracy(accuracy int) string {
	icon := "cci-accuracy"
	if accuracy < 0 {
		icon = "cci-difficulty"
	}
	return fmt.Sprintf(`<div class="flexrow accuracy" title="%s"><i class="cci %s i--m i--dark"></i><span class="medium">%+d</span></div>`,
		attr(r.Labels.lookup("lancer.feature.accuracy", "Accuracy")), icon, accuracy)
}

func (r Renderer) valueList(class, key, fallback string, values []document.Fields) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="flexrow %s-list" title="%s">`, class, attr(r.Labels.lookup(key, fallback)))
	for _, value := range values {
		kind := stringify(value["type"])
		slug := slugify(kind)
		fmt.Fprintf(&b, `<span class="%s"><i class="cci cci-%s i--m %s--%s" title="%s"></i>%s</span>`,
			class, attr(slug), class, attr(slug), attr(kind), templ.EscapeString(stringify(value["val"])))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (r Renderer) tagList(c card) string {
	if len(c.tags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="compact-tag-row">`)
	for _, tag := range c.tags {
		fallback := tag.name
		if fallback == "" {
			fallback = tag.lid
		}
		name := strings.ReplaceAll(r.Labels.TagName(tag.lid, fallback), "{VAL}", tag.val)
		fmt.Fprintf(&b, `<div class="compact-tag flexrow" title="%s"><span>%s</span></div>`,
			attr(r.Labels.TagDescription(tag.lid, "")), templ.EscapeString(name))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (c card) list(field string) []document.Fields {
	raw, _ := c.doc.Data.Get(field)
	return objects(raw)
}

// tierList returns the tier's entry of a per-tier list of lists.
func (c card) tierList(field string) []document.Fields {
	raw, _ := c.doc.Data.Get(field)
	tiers, ok := raw.([]any)
	if !ok || c.tierIndex >= len(tiers) {
		return nil
	}
	return objects(tiers[c.tierIndex])
}

func objects(raw any) []document.Fields {
	list, _ := raw.([]any)
	out := make([]document.Fields, 0, len(list))
	for _, entry := range list {
		if fields, ok := document.AsFields(entry); ok {
			out = append(out, fields)
		}
	}
	return out
}

// readTags accepts migrated tags, which reference the tag entry, as well as
// plain {lid|id, val} entries.
func readTags(data document.Fields) []tagRef {
	raw, _ := data.Get("tags")
	var out []tagRef
	for _, entry := range objects(raw) {
		tag := tagRef{val: stringify(entry["val"])}
		if ref, ok := entry.Object("tag"); ok {
			tag.lid, _ = ref.String("fallback_lid")
			if tag.lid == "" {
				tag.lid, _ = ref.String("lid")
			}
			tag.name, _ = ref.String("name")
		}
		if tag.lid == "" {
			tag.lid, _ = entry.String("lid")
		}
		if tag.lid == "" {
			tag.lid, _ = entry.String("id")
		}
		if tag.name == "" {
			tag.name, _ = entry.String("name")
		}
		if tag.lid != "" {
			out = append(out, tag)
		}
	}
	return out
}

func actorSystems(actor *document.Document) (int, bool) {
	if actor == nil {
		return 0, false
	}
	sys, ok := actor.Data.Number("systems")
	if !ok {
		return 0, false
	}
	return int(sys), true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

func slugify(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func attr(s string) string {
	return templ.EscapeString(s)
}
