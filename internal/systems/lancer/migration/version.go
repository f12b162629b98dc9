package migration

import (
	"strings"

	"golang.org/x/mod/semver"
)

// MinorThreshold is the oldest stored version that only needs the minor tier.
const MinorThreshold = "0.9.0"

// Plan is the migration work owed for a stored version.
type Plan int

const (
	// PlanNone means the world is current.
	PlanNone Plan = iota
	// PlanStamp means the world has never recorded a version; it is new and
	// only needs the current version written.
	PlanStamp
	// PlanMinor means field renames only.
	PlanMinor
	// PlanMajor means the structural reshape plus reference data reset.
	PlanMajor
)

// String returns the plan name.
func (p Plan) String() string {
	switch p {
	case PlanNone:
		return "none"
	case PlanStamp:
		return "stamp"
	case PlanMinor:
		return "minor"
	case PlanMajor:
		return "major"
	}
	return "unknown"
}

// canonical returns v in the "vX.Y.Z" form semver expects. Unparseable
// versions compare as the oldest possible release.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v0.0.0"
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "v0.0.0"
	}
	return v
}

// ValidVersion reports whether v parses as a semantic version, with or
// without a leading "v".
func ValidVersion(v string) bool {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}

// ShouldMigrate reports whether a world stored at stored is behind current.
func ShouldMigrate(stored, current string) bool {
	return semver.Compare(canonical(stored), canonical(current)) < 0
}

// ShouldRunMinor reports whether stored is recent enough for the minor tier.
func ShouldRunMinor(stored string) bool {
	return semver.Compare(canonical(stored), canonical(MinorThreshold)) >= 0
}

// PlanFor decides what a world stored at stored owes the running version.
func PlanFor(stored, current string) Plan {
	if strings.TrimSpace(stored) == "" {
		return PlanStamp
	}
	if !ShouldMigrate(stored, current) {
		return PlanNone
	}
	if ShouldRunMinor(stored) {
		return PlanMinor
	}
	return PlanMajor
}
