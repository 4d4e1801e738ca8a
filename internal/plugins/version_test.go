package plugins_test

import (
	"testing"

	"github.com/kalendo/pluginhub/internal/plugins"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		v1   string
		v2   string
		sign int
	}{
		{"Equal versions", "1.0.0", "1.0.0", 0},
		{"Numeric not lexical", "1.2.0", "1.10.0", -1},
		{"Missing trailing component", "1.0", "1.0.0", 0},
		{"Major wins", "2.0.0", "1.9.9", 1},
		{"Patch difference", "1.0.0", "1.0.1", -1},
		{"Longer is newer", "1.0.0.1", "1.0.0", 1},
		{"Pre-release suffix ignored", "1.0.0-alpha", "1.0.0", 0},
		{"Leading v", "v1.2.3", "1.2.3", 0},
		{"Empty is zero", "", "0.0.0", 0},
		{"Garbage component is zero", "1.x.0", "1.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plugins.CompareVersions(tt.v1, tt.v2)
			if sign(got) != tt.sign {
				t.Errorf("CompareVersions(%q, %q) = %d, want sign %d", tt.v1, tt.v2, got, tt.sign)
			}
			// Antisymmetry
			if sign(plugins.CompareVersions(tt.v2, tt.v1)) != -tt.sign {
				t.Errorf("CompareVersions(%q, %q) is not antisymmetric", tt.v2, tt.v1)
			}
		})
	}
}

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		name     string
		v1       string
		v2       string
		expected bool
	}{
		{"v2 is newer", "1.0.0", "1.0.1", true},
		{"v2 is older", "1.0.1", "1.0.0", false},
		{"Same version", "1.0.0", "1.0", false},
		{"Minor version update", "1.9.0", "1.10.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plugins.IsNewerVersion(tt.v1, tt.v2); got != tt.expected {
				t.Errorf("IsNewerVersion() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		min      string
		max      string
		expected bool
	}{
		{"No bounds", "1.0.0", "", "", true},
		{"Inside range", "2.1.0", "2.0.0", "3.0.0", true},
		{"Below minimum", "1.9.9", "2.0.0", "", false},
		{"Above maximum", "3.0.1", "", "3.0.0", false},
		{"Inclusive bounds", "2.0.0", "2.0.0", "2.0.0", true},
		{"Short versions", "2.1", "2", "", true},
		{"Invalid app version", "not-a-version", "1.0.0", "", false},
		{"Invalid bound", "1.0.0", "nope", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plugins.IsCompatible(tt.app, tt.min, tt.max); got != tt.expected {
				t.Errorf("IsCompatible(%q, %q, %q) = %v, want %v", tt.app, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
