package version

import (
	"strconv"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// FromSemver converts a semantic version (as a repository fragment that
// speaks semver rather than the native epoch/upstream/release/revision
// scheme might advertise, e.g. a manifest mirrored from a Go module proxy)
// into the native Version representation. Major.Minor.Patch collapse into
// the upstream component; a semver prerelease becomes the release
// component; semver build metadata has no native equivalent and is
// dropped, matching "metadata is not used in precedence" (semver §10) —
// bpkg versions have no such notion either.
func FromSemver(sv *semver.Version) Version {
	v := Version{
		Upstream: strconv.FormatInt(sv.Major(), 10) + "." +
			strconv.FormatInt(sv.Minor(), 10) + "." +
			strconv.FormatInt(sv.Patch(), 10),
	}
	if pre := sv.Prerelease(); pre != "" {
		v.Release = &pre
	}
	return v
}

// ToSemver renders v as a semantic version string, for interop with
// repository fragments or tooling that only understands semver. It only
// succeeds for versions shaped like semver's major.minor.patch[-pre]; a
// bpkg-native epoch, revision, or iteration component has no semver
// equivalent.
func ToSemver(v Version) (*semver.Version, error) {
	if v.IsWildcard() {
		return nil, errors.New("version: the wildcard version has no semver equivalent")
	}
	if v.Epoch != 0 {
		return nil, errors.Errorf("version: %s has a nonzero epoch, which semver cannot represent", v.Format())
	}
	if v.Revision != nil || v.Iteration != 0 {
		return nil, errors.Errorf("version: %s has a revision or iteration, which semver cannot represent", v.Format())
	}
	s := v.Upstream
	if v.Release != nil {
		s += "-" + *v.Release
	}
	sv, err := semver.NewVersion(s)
	if err != nil {
		return nil, errors.Wrapf(err, "version: %s is not representable as semver", v.Format())
	}
	return sv, nil
}
