package resolver

import (
	"context"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/store"
	"github.com/bpkgtools/bpkg/version"
)

// StoreSource is the default Source, answering available-package lookups
// directly out of the local store's cached repository metadata (§4.2 item
// i "load-available-by-name").
type StoreSource struct {
	St *store.Store
}

// NewStoreSource builds a Source backed by st.
func NewStoreSource(st *store.Store) *StoreSource { return &StoreSource{St: st} }

func (s *StoreSource) AvailablePackagesMatching(ctx context.Context, name manifest.Name, c version.Constraint) ([]*manifest.AvailablePackage, error) {
	return s.St.AvailablePackagesMatching(ctx, name, c)
}

func (s *StoreSource) FragmentIDFor(ctx context.Context, pkg *manifest.AvailablePackage) (int64, error) {
	return s.St.AvailablePackageFragmentID(ctx, pkg.Name, pkg.Version)
}
