package main

import (
	"path/filepath"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/skeleton"
	"github.com/bpkgtools/bpkg/store"
)

// noopDriver stands in for the real build-system driver, which is
// explicitly an external collaborator (§1 Non-goals): it reports every
// configuration sensible without touching disk, enough to let the
// resolver/planner/executor pipeline run end to end against packages that
// carry no build-system fragments of their own.
type noopDriver struct{}

func (noopDriver) Load(pkg *manifest.AvailablePackage, cfg *skeleton.Config) ([]string, error) {
	return nil, nil
}

func makeSkeleton(pkg *manifest.AvailablePackage) *skeleton.Skeleton {
	return skeleton.New(pkg, noopDriver{}, nil, nil)
}

// workspaceLayout points the executor's default handlers at
// <root>/bpkg/src/<name>-<version> and <root>/bpkg/out/<name>-<version>,
// mirroring the on-disk layout described in §6.
type workspaceLayout struct {
	root string
}

func (l workspaceLayout) SrcRoot(sp *store.SelectedPackage) string {
	return filepath.Join(l.root, "bpkg", "src", packageDir(sp))
}

func (l workspaceLayout) OutRoot(sp *store.SelectedPackage) string {
	return filepath.Join(l.root, "bpkg", "out", packageDir(sp))
}

func packageDir(sp *store.SelectedPackage) string {
	return string(sp.Name) + "-" + sp.Version.Format()
}
