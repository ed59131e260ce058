package store

import (
	"context"

	"github.com/pkg/errors"
)

// Repository is a named source of package manifests; it may consist of
// several fragments (§3).
type Repository struct {
	ID                     int64
	Name                   string
	Location               string
	CertificateFingerprint string
}

// Fragment is an immutable snapshot of a repository at a point (§3):
// a commit id for VCS-based repositories, or a directory/archive identity
// otherwise.
type Fragment struct {
	ID           int64
	RepositoryID int64
	Name         string
	Location     string
}

// EdgeKind distinguishes a fragment's complement edges from its
// prerequisite edges (§3).
type EdgeKind string

const (
	EdgeComplement  EdgeKind = "complement"
	EdgePrerequisite EdgeKind = "prerequisite"
)

// InsertRepository records a repository and its authenticated certificate
// fingerprint (nil/empty for an unsigned repository, see auth package).
func (s *Store) InsertRepository(ctx context.Context, r *Repository) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO repository (name, location, certificate_fingerprint) VALUES (?, ?, ?)`,
		r.Name, r.Location, nullableString(r.CertificateFingerprint))
	if err != nil {
		return 0, errors.Wrapf(err, "store: inserting repository %s", r.Name)
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "store: reading inserted repository id")
}

// DeleteRepository removes a repository and its fragments in one
// transaction, explicitly deleting the available packages and fragment
// edges of each removed fragment first (available packages are deleted on
// repository removal, §3 lifecycle).
func (s *Store) DeleteRepository(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: beginning repository removal transaction")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM repository_fragment WHERE repository_id=?`, id)
	if err != nil {
		return errors.Wrap(err, "store: listing fragments to remove")
	}
	var fragIDs []int64
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			rows.Close()
			return errors.Wrap(err, "store: scanning fragment id")
		}
		fragIDs = append(fragIDs, fid)
	}
	rows.Close()

	for _, fid := range fragIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM available_package WHERE fragment_id=?`, fid); err != nil {
			return errors.Wrap(err, "store: deleting available packages for removed fragment")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repository_fragment_edge WHERE fragment_id=? OR other_id=?`, fid, fid); err != nil {
			return errors.Wrap(err, "store: deleting fragment edges")
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM repository_fragment WHERE repository_id=?`, id); err != nil {
		return errors.Wrap(err, "store: deleting fragments")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM repository WHERE id=?`, id); err != nil {
		return errors.Wrap(err, "store: deleting repository")
	}
	return errors.Wrap(tx.Commit(), "store: committing repository removal")
}

// InsertFragment records a new repository fragment.
func (s *Store) InsertFragment(ctx context.Context, f *Fragment) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO repository_fragment (repository_id, name, location) VALUES (?, ?, ?)`,
		f.RepositoryID, f.Name, f.Location)
	if err != nil {
		return 0, errors.Wrapf(err, "store: inserting fragment %s", f.Name)
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "store: reading inserted fragment id")
}

// LinkFragments records a complement or prerequisite weak reference between
// two fragments (§3).
func (s *Store) LinkFragments(ctx context.Context, fragmentID, otherID int64, kind EdgeKind) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repository_fragment_edge (fragment_id, other_id, kind) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, fragmentID, otherID, string(kind))
	return errors.Wrap(err, "store: linking fragments")
}

// FragmentGraph returns the complement and prerequisite fragment ids
// reachable from fragmentID, keyed by (workspace-uuid-less) fragment id —
// per design note §9, cyclic references are kept as keys resolved through
// the store rather than in-memory pointers.
func (s *Store) FragmentGraph(ctx context.Context, fragmentID int64, kind EdgeKind) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT other_id FROM repository_fragment_edge WHERE fragment_id=? AND kind=?`, fragmentID, string(kind))
	if err != nil {
		return nil, errors.Wrap(err, "store: querying fragment graph")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "store: scanning fragment graph row")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
