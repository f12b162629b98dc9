package migration

import (
	"sort"
	"strings"

	"github.com/louisbranch/lancer-system/internal/systems/lancer/document"
)

const deprecatedSuffix = "_deprecated"

// Scrub returns deletions for every subtree flagged with a true
// "_deprecated" leaf. Each flagged parent is deleted once.
func Scrub(data document.Fields) document.Patch {
	parents := map[string]struct{}{}
	for path, value := range data.Flatten() {
		if !strings.HasSuffix(path, deprecatedSuffix) {
			continue
		}
		if flag, ok := value.(bool); !ok || !flag {
			continue
		}
		idx := strings.LastIndex(path, ".")
		if idx <= 0 {
			continue
		}
		parents[path[:idx]] = struct{}{}
	}

	paths := make([]string, 0, len(parents))
	for path := range parents {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var patch document.Patch
	for _, path := range paths {
		patch.Delete(path)
	}
	return patch
}
