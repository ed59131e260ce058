package store

import (
	"testing"

	"github.com/bpkgtools/bpkg/version"
)

func mustVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.ParseVersion(s)
	if err != nil {
		t.Fatalf("version.ParseVersion(%q): %v", s, err)
	}
	return v
}

func versionConstraint(s string) (version.Constraint, error) {
	return version.Parse(s, version.Default)
}
