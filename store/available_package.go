package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/version"
)

// InsertAvailablePackage persists pkg as immutable available-package data,
// associated with the repository fragment it was fetched from. Available
// packages are never mutated once persisted (§3 lifecycle).
func (s *Store) InsertAvailablePackage(ctx context.Context, fragmentID int64, pkg *manifest.AvailablePackage) error {
	deps, err := json.Marshal(pkg.Dependencies)
	if err != nil {
		return errors.Wrap(err, "store: encoding dependency groups")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO available_package
			(name, version, upstream, type, project_name, dependencies, boot_fragment, root_fragment, sha256, fragment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		string(pkg.Name), pkg.Version.Format(), pkg.Version.Upstream, string(pkg.Type), pkg.ProjectName,
		string(deps), pkg.BootFragment, pkg.RootFragment, pkg.SHA256, fragmentID,
	)
	if err != nil {
		return errors.Wrapf(err, "store: inserting available package %s/%s", pkg.Name, pkg.Version)
	}
	return nil
}

// AvailablePackagesByName returns every available version of name, ordered
// newest-first, matching the invocation-boundary contract
// `load-available-by-name(name) → [available_package]` (§6).
func (s *Store) AvailablePackagesByName(ctx context.Context, name manifest.Name) ([]*manifest.AvailablePackage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version, type, project_name, dependencies, boot_fragment, root_fragment, sha256
		FROM available_package WHERE lower(name) = lower(?)`, string(name))
	if err != nil {
		return nil, errors.Wrapf(err, "store: querying available packages for %s", name)
	}
	defer rows.Close()

	var out []*manifest.AvailablePackage
	for rows.Next() {
		pkg, err := scanAvailablePackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortPackagesByVersion(out)
	return out, nil
}

// AvailablePackagesMatching returns every available version of name
// satisfying c, ordered newest-first (§4.2 item i "matching this
// constraint, greatest first").
func (s *Store) AvailablePackagesMatching(ctx context.Context, name manifest.Name, c version.Constraint) ([]*manifest.AvailablePackage, error) {
	all, err := s.AvailablePackagesByName(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []*manifest.AvailablePackage
	for _, p := range all {
		if c == nil || c.Matches(p.Version) {
			out = append(out, p)
		}
	}
	return out, nil
}

// AvailablePackageFragmentID returns the repository fragment id an
// available package's manifest was fetched from, for the executor's
// fetch/unpack steps and the resolver's BuildPackage.FragmentID (§4.6,
// §4.8).
func (s *Store) AvailablePackageFragmentID(ctx context.Context, name manifest.Name, v version.Version) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT fragment_id FROM available_package WHERE lower(name)=lower(?) AND version=?`,
		string(name), v.Format(),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "store: looking up fragment for %s/%s", name, v)
	}
	return id, nil
}

func scanAvailablePackage(rows *sql.Rows) (*manifest.AvailablePackage, error) {
	var (
		name, ver, typ, project, depsJSON string
		boot, root, sha256                sql.NullString
	)
	if err := rows.Scan(&name, &ver, &typ, &project, &depsJSON, &boot, &root, &sha256); err != nil {
		return nil, errors.Wrap(err, "store: scanning available package row")
	}
	v, err := version.ParseVersion(ver)
	if err != nil {
		return nil, errors.Wrapf(err, "store: corrupt version %q for package %s", ver, name)
	}
	var deps []manifest.AlternativeGroup
	if err := json.Unmarshal([]byte(depsJSON), &deps); err != nil {
		return nil, errors.Wrapf(err, "store: corrupt dependency groups for %s/%s", name, ver)
	}
	return &manifest.AvailablePackage{
		Name:         manifest.Name(name),
		Version:      v,
		Type:         manifest.PackageType(typ),
		ProjectName:  project,
		Dependencies: deps,
		BootFragment: boot.String,
		RootFragment: root.String,
		SHA256:       sha256.String,
	}, nil
}

// sortPackagesByVersion sorts pkgs in place, newest version first, with a
// stable insertion sort so packages of equal version keep their query
// order. AvailablePackage carries no system flag at this layer, so system
// candidates are not ranked separately (§4.6.1 tie-break).
func sortPackagesByVersion(pkgs []*manifest.AvailablePackage) {
	for i := 1; i < len(pkgs); i++ {
		for j := i; j > 0 && version.Compare(pkgs[j].Version, pkgs[j-1].Version, version.Default) > 0; j-- {
			pkgs[j], pkgs[j-1] = pkgs[j-1], pkgs[j]
		}
	}
}
