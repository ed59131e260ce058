package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/version"
)

func TestParseBuildArgWithoutConstraintMatchesAnyVersion(t *testing.T) {
	name, c, err := parseBuildArg("libshared")
	require.NoError(t, err)
	require.Equal(t, manifest.Name("libshared"), name)
	require.Equal(t, version.Any, c)
}

func TestParseBuildArgWithConstraintParsesBound(t *testing.T) {
	name, c, err := parseBuildArg("libshared/>=2.0.0")
	require.NoError(t, err)
	require.Equal(t, manifest.Name("libshared"), name)

	v, err := version.ParseVersion("2.1.0")
	require.NoError(t, err)
	require.True(t, c.Matches(v))

	tooOld, err := version.ParseVersion("1.0.0")
	require.NoError(t, err)
	require.False(t, c.Matches(tooOld))
}

func TestParseBuildArgRejectsEmptyName(t *testing.T) {
	_, _, err := parseBuildArg("/>=1.0.0")
	require.Error(t, err)
}
