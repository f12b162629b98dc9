package effects

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

// DefaultIconSet is enabled when no icon set is selected.
const DefaultIconSet = "default"

// Status is one entry of the token status palette.
type Status struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Icon        string `json:"icon" yaml:"icon"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type iconSet struct {
	Name  string   `yaml:"name"`
	Icons []Status `yaml:"icons"`
}

//go:embed icons.yaml
var iconsYAML []byte

var loadIconSets = sync.OnceValues(func() ([]iconSet, error) {
	var parsed struct {
		Sets []iconSet `yaml:"sets"`
	}
	if err := yaml.Unmarshal(iconsYAML, &parsed); err != nil {
		return nil, fmt.Errorf("parse status icon sets: %w", err)
	}
	return parsed.Sets, nil
})

// IconSets returns the names of the bundled icon sets in the order they are
// applied.
func IconSets() ([]string, error) {
	sets, err := loadIconSets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(sets))
	for _, set := range sets {
		names = append(names, set.Name)
	}
	return names, nil
}

// Configure builds the status palette from the enabled icon sets. Sets are
// applied in bundle order regardless of the order given; a later set
// replaces the icon of a status an earlier set added. With nothing enabled
// the default set is used.
func Configure(enabled []string) ([]Status, error) {
	sets, err := loadIconSets()
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(sets))
	for _, set := range sets {
		known[set.Name] = struct{}{}
	}
	want := map[string]struct{}{}
	for _, name := range enabled {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown status icon set %q", name)
		}
		want[name] = struct{}{}
	}
	if len(want) == 0 {
		want[DefaultIconSet] = struct{}{}
	}

	var statuses []Status
	for _, set := range sets {
		if _, ok := want[set.Name]; !ok {
			continue
		}
		statuses = swapIcons(statuses, set.Icons)
	}
	return statuses, nil
}

func swapIcons(statuses []Status, with []Status) []Status {
	for _, icon := range with {
		if i := indexOf(statuses, icon.ID); i >= 0 {
			statuses[i].Icon = icon.Icon
			continue
		}
		statuses = append(statuses, Status{ID: icon.ID, Name: icon.Name, Icon: icon.Icon})
	}
	return statuses
}

func indexOf(statuses []Status, id string) int {
	for i, status := range statuses {
		if status.ID == id {
			return i
		}
	}
	return -1
}

// PopulateFromItems backfills the palette from status items. Items need a
// lid and an image; known statuses take the item's icon and description,
// unknown ones are appended.
func PopulateFromItems(statuses []Status, items []document.Document) []Status {
	out := append([]Status(nil), statuses...)
	for _, item := range items {
		if item.Type != document.TypeStatus || item.Img == "" {
			continue
		}
		lid, _ := item.Data.String("lid")
		if lid == "" {
			continue
		}
		i := indexOf(out, lid)
		if i < 0 {
			out = append(out, Status{ID: lid, Name: item.Name, Icon: item.Img})
			continue
		}
		out[i].Icon = item.Img
		if description, ok := item.Data.String("effects"); ok && description != "" {
			out[i].Description = description
		}
	}
	return out
}
