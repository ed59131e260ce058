package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpkgtools/bpkg/manifest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchemaAndSelfConfiguration(t *testing.T) {
	s := openTestStore(t)
	cfgs, _, err := s.LinkedConfigurations(context.Background(), SelfConfigurationID)
	require.NoError(t, err)
	require.Empty(t, cfgs, "a fresh workspace has no linked configurations yet")
}

func TestOpenTwiceFailsWithInUse(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	defer s1.Close()

	_, err = Open(dir)
	require.ErrorIs(t, err, ErrInUse)
}

func TestAvailablePackageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	repoID, err := s.InsertRepository(ctx, &Repository{Name: "example", Location: "https://example.test/repo"})
	require.NoError(t, err)
	fragID, err := s.InsertFragment(ctx, &Fragment{RepositoryID: repoID, Name: "example", Location: "https://example.test/repo"})
	require.NoError(t, err)

	pkg, err := manifest.Parse(strings.NewReader(`version: 1
name: libhello
version-value: 1.0.1
type: lib
`))
	require.NoError(t, err)

	require.NoError(t, s.InsertAvailablePackage(ctx, fragID, pkg))

	got, err := s.AvailablePackagesByName(ctx, "libhello")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1.0.1", got[0].Version.Format())
}

func TestAvailablePackagesMatchingOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fragID := mustFragment(t, s)

	for _, v := range []string{"1.0.0", "1.0.1", "1.1.0"} {
		pkg, err := manifest.Parse(strings.NewReader("version: 1\nname: libhello\nversion-value: " + v + "\n"))
		require.NoError(t, err)
		require.NoError(t, s.InsertAvailablePackage(ctx, fragID, pkg))
	}

	c, err := versionConstraint(">=1.0.0,<1.1.0")
	require.NoError(t, err)
	got, err := s.AvailablePackagesMatching(ctx, "libhello", c)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "1.0.1", got[0].Version.Format())
	require.Equal(t, "1.0.0", got[1].Version.Format())
}

func TestSelectedPackageAndDependents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSelectedPackage(ctx, &SelectedPackage{
		ConfigurationID: SelfConfigurationID,
		Name:            "libhello",
		Version:         mustVersion(t, "1.0.1"),
		State:           StateConfigured,
		Substate:        SubstateNone,
	}))

	c, err := versionConstraint(">=1.0.0")
	require.NoError(t, err)
	hello := &SelectedPackage{
		ConfigurationID: SelfConfigurationID,
		Name:            "hello",
		Version:         mustVersion(t, "1.0.0"),
		State:           StateConfigured,
		Prerequisites: []PrerequisiteRef{
			{ConfigurationID: SelfConfigurationID, Name: "libhello", Constraint: c},
		},
	}
	require.NoError(t, s.UpsertSelectedPackage(ctx, hello))

	deps, err := s.Dependents(ctx, SelfConfigurationID, "libhello")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, manifest.Name("hello"), deps[0].Name)

	all, err := s.SelectedPackages(ctx, SelfConfigurationID)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func mustFragment(t *testing.T, s *Store) int64 {
	t.Helper()
	ctx := context.Background()
	repoID, err := s.InsertRepository(ctx, &Repository{Name: "example", Location: "https://example.test/repo"})
	require.NoError(t, err)
	fragID, err := s.InsertFragment(ctx, &Fragment{RepositoryID: repoID, Name: "example", Location: "https://example.test/repo"})
	require.NoError(t, err)
	return fragID
}
