package executor

import (
	"context"
	"os"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/termie/go-shutil"

	"github.com/bpkgtools/bpkg/store"
)

// Layout locates the on-disk source and output roots for a selected
// package, so the default handlers know where to copy/remove trees
// (§6 "<name>-<version>/ source trees").
type Layout interface {
	SrcRoot(sp *store.SelectedPackage) string
	OutRoot(sp *store.SelectedPackage) string
}

// DefaultHandlers wires the concrete filesystem side effects for unpack,
// disfigure, and uninstall using the same copy/walk libraries the
// teacher used for its own checkout and vendor-pruning operations:
// go-shutil for tree copies, godirwalk for fast recursive removal. No
// fetch handler is registered, so fetch only advances the package state.
// configure/update/test/install are left to the caller to register, since
// those invoke a package's own build system rather than generic
// filesystem operations.
func DefaultHandlers(layout Layout) map[StepKind]Handler {
	return map[StepKind]Handler{
		StepUnpack: func(ctx context.Context, sp *store.SelectedPackage) error {
			srcRoot := layout.SrcRoot(sp)
			if sp.Archive == "" {
				return nil // already a bare directory dependency, nothing to unpack
			}
			cfg := &shutil.CopyTreeOptions{
				Symlinks:     true,
				CopyFunction: shutil.Copy,
			}
			if err := shutil.CopyTree(sp.Archive, srcRoot, cfg); err != nil {
				return errors.Wrapf(err, "executor: unpacking %s into %s", sp.Name, srcRoot)
			}
			sp.SrcRoot = srcRoot
			return nil
		},
		StepDisfigure: func(ctx context.Context, sp *store.SelectedPackage) error {
			if sp.OutRoot == "" {
				return nil
			}
			return removeTree(sp.OutRoot)
		},
		StepUninstall: func(ctx context.Context, sp *store.SelectedPackage) error {
			installRoot := layout.OutRoot(sp)
			return removeTree(installRoot)
		},
	}
}

// removeTree deletes pathname recursively. It first walks the tree with
// godirwalk (faster than filepath.Walk since it skips the per-node stat),
// failing if any directory in it cannot be read, then removes it with
// os.RemoveAll; the walk inspects no entry beyond that. This matches the
// teacher's use of the same package for its own vendor-pruning walk.
func removeTree(pathname string) error {
	if _, err := os.Stat(pathname); os.IsNotExist(err) {
		return nil
	}
	err := godirwalk.Walk(pathname, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			return nil
		},
	})
	if err != nil {
		return errors.Wrapf(err, "executor: walking %s for removal", pathname)
	}
	return errors.Wrapf(os.RemoveAll(pathname), "executor: removing %s", pathname)
}
