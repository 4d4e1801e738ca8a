package plugins

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareVersions compares two dotted version strings component by component
// as integers. Missing trailing components count as 0 and pre-release or
// build suffixes are not interpreted.
// Returns:
// - negative if v1 < v2
// - 0 if v1 == v2
// - positive if v1 > v2
func CompareVersions(v1, v2 string) int {
	p1 := versionParts(v1)
	p2 := versionParts(v2)

	n := len(p1)
	if len(p2) > n {
		n = len(p2)
	}
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(p1) {
			a = p1[i]
		}
		if i < len(p2) {
			b = p2[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// versionParts splits a version on "." and parses the leading digits of each
// component. Components without leading digits count as 0.
func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	fields := strings.Split(v, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		end := 0
		for end < len(f) && f[end] >= '0' && f[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(f[:end])
		if err != nil {
			n = 0
		}
		parts[i] = n
	}
	return parts
}

// IsNewerVersion checks if v2 is newer than v1.
func IsNewerVersion(v1, v2 string) bool {
	return CompareVersions(v1, v2) < 0
}

// IsCompatible reports whether appVersion falls inside [minVersion, maxVersion].
// Empty bounds are open. An unparsable app version or bound is incompatible.
func IsCompatible(appVersion, minVersion, maxVersion string) bool {
	if minVersion == "" && maxVersion == "" {
		return true
	}
	app, err := semver.NewVersion(strings.TrimPrefix(appVersion, "v"))
	if err != nil {
		return false
	}

	var bounds []string
	if minVersion != "" {
		bounds = append(bounds, ">= "+strings.TrimPrefix(minVersion, "v"))
	}
	if maxVersion != "" {
		bounds = append(bounds, "<= "+strings.TrimPrefix(maxVersion, "v"))
	}
	constraint, err := semver.NewConstraint(strings.Join(bounds, ", "))
	if err != nil {
		return false
	}
	return constraint.Check(app)
}
