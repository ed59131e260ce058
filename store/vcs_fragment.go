package store

import (
	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"
)

// VCSFragmentIdentity determines the commit id that stands for a VCS-based
// repository fragment's identity (§3 "a commit id for VCS-based
// repositories"), by inspecting the already-checked-out working copy at
// location. Only git is supported directly; any other detected VCS type
// is reported so the caller can decide whether to treat the fragment as a
// plain directory snapshot instead.
func VCSFragmentIdentity(location string) (string, error) {
	typ, err := vcs.DetectVcsFromFS(location)
	if err != nil {
		return "", errors.Wrapf(err, "store: detecting VCS type at %s", location)
	}
	if typ != vcs.Git {
		return "", errors.Errorf("store: VCS type %s at %s is not supported for fragment identity", typ, location)
	}

	repo, err := vcs.NewGitRepo(location, location)
	if err != nil {
		return "", errors.Wrapf(err, "store: opening git repository at %s", location)
	}
	id, err := repo.Version()
	if err != nil {
		return "", errors.Wrapf(err, "store: reading checked-out commit at %s", location)
	}
	return id, nil
}
