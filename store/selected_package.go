package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/version"
)

// State is the selected-package lifecycle state (§3).
type State string

const (
	StateFetched    State = "fetched"
	StateUnpacked   State = "unpacked"
	StateConfigured State = "configured"
	StateBroken     State = "broken"
	StateTransient  State = "transient"
)

// Substate further qualifies a selected package.
type Substate string

const (
	SubstateNone   Substate = "none"
	SubstateSystem Substate = "system"
)

// ConfigVariableSource records who imposed a configuration variable.
type ConfigVariableSource string

const (
	SourceUser      ConfigVariableSource = "user"
	SourceDependent ConfigVariableSource = "dependent"
	SourceReflect   ConfigVariableSource = "reflect"
)

// ConfigVariable is one recorded configuration variable name plus its
// origin, as stored on a selected package (§3).
type ConfigVariable struct {
	Name   string               `json:"name"`
	Source ConfigVariableSource `json:"source"`
}

// PrerequisiteRef identifies a prerequisite: a selected package in some
// (possibly linked) workspace, plus the tightest constraint that caused it.
type PrerequisiteRef struct {
	ConfigurationID int64
	Name            manifest.Name
	Constraint      version.Constraint
}

// SelectedPackage is the recorded state of a package within one workspace
// (§3).
type SelectedPackage struct {
	ConfigurationID int64
	Name            manifest.Name
	Version         version.Version
	State           State
	Substate        Substate
	HoldPackage     bool
	HoldVersion     bool
	SrcRoot         string
	OutRoot         string
	Archive         string

	Prerequisites []PrerequisiteRef

	// AlternativeSelection holds, per declared dependency alternative
	// group (in declaration order), the chosen 1-based alternative index,
	// or 0 for "not applicable" (§3 invariant).
	AlternativeSelection []int

	ConfigVariables []ConfigVariable
	ConfigChecksum  string
}

// IsHeld reports whether package or version holds are in force. Per the
// data-model invariant, holds are only meaningful while the package is
// configured or unpacked; callers that load a SelectedPackage from the
// store only ever see one that already satisfies that invariant.
func (p *SelectedPackage) IsHeld() bool { return p.HoldPackage || p.HoldVersion }

// IsConfigured reports the invariant "configured iff all prerequisites are
// configured in their respective linked workspaces" from the caller's
// point of view; the resolver is responsible for actually walking
// prerequisites to confirm it holds.
func (p *SelectedPackage) IsConfigured() bool { return p.State == StateConfigured }

// UpsertSelectedPackage writes sp's row and prerequisite set in one
// transaction, satisfying "every operation that mutates state runs inside
// one transaction" (§4.2).
func (s *Store) UpsertSelectedPackage(ctx context.Context, sp *SelectedPackage) error {
	altJSON, err := json.Marshal(sp.AlternativeSelection)
	if err != nil {
		return errors.Wrap(err, "store: encoding alternative selection")
	}
	cfgJSON, err := json.Marshal(sp.ConfigVariables)
	if err != nil {
		return errors.Wrap(err, "store: encoding config variables")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: beginning selected-package transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO selected_package
			(configuration_id, name, version, state, substate, hold_package, hold_version,
			 src_root, out_root, archive, alternative_selection, config_variables, config_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (configuration_id, name) DO UPDATE SET
			version=excluded.version, state=excluded.state, substate=excluded.substate,
			hold_package=excluded.hold_package, hold_version=excluded.hold_version,
			src_root=excluded.src_root, out_root=excluded.out_root, archive=excluded.archive,
			alternative_selection=excluded.alternative_selection,
			config_variables=excluded.config_variables, config_checksum=excluded.config_checksum`,
		sp.ConfigurationID, string(sp.Name), sp.Version.Format(), string(sp.State), string(sp.Substate),
		boolToInt(sp.HoldPackage), boolToInt(sp.HoldVersion), sp.SrcRoot, sp.OutRoot, sp.Archive,
		string(altJSON), string(cfgJSON), sp.ConfigChecksum,
	)
	if err != nil {
		return errors.Wrapf(err, "store: upserting selected package %s", sp.Name)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM selected_package_prerequisite WHERE configuration_id=? AND name=?`,
		sp.ConfigurationID, string(sp.Name)); err != nil {
		return errors.Wrap(err, "store: clearing prerequisites")
	}
	for _, pr := range sp.Prerequisites {
		var constraintText sql.NullString
		if pr.Constraint != nil {
			constraintText = sql.NullString{String: pr.Constraint.String(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO selected_package_prerequisite
				(configuration_id, name, dep_configuration_id, dep_name, constraint_text)
			VALUES (?, ?, ?, ?, ?)`,
			sp.ConfigurationID, string(sp.Name), pr.ConfigurationID, string(pr.Name), constraintText,
		); err != nil {
			return errors.Wrap(err, "store: inserting prerequisite")
		}
	}

	return errors.Wrap(tx.Commit(), "store: committing selected-package transaction")
}

// DeleteSelectedPackage purges the selected-package row (and its
// prerequisite set), implementing the §3 "purge" lifecycle transition.
func (s *Store) DeleteSelectedPackage(ctx context.Context, configurationID int64, name manifest.Name) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: beginning purge transaction")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM selected_package_prerequisite WHERE configuration_id=? AND name=?`, configurationID, string(name)); err != nil {
		return errors.Wrap(err, "store: purging prerequisites")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM selected_package WHERE configuration_id=? AND name=?`, configurationID, string(name)); err != nil {
		return errors.Wrap(err, "store: purging selected package")
	}
	return errors.Wrap(tx.Commit(), "store: committing purge transaction")
}

// SelectedPackages returns every selected package in configurationID,
// ordered by name (§4.2 item iii).
func (s *Store) SelectedPackages(ctx context.Context, configurationID int64) ([]*SelectedPackage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT configuration_id, name, version, state, substate, hold_package, hold_version,
		       src_root, out_root, archive, alternative_selection, config_variables, config_checksum
		FROM selected_package WHERE configuration_id=? ORDER BY lower(name)`, configurationID)
	if err != nil {
		return nil, errors.Wrap(err, "store: querying selected packages")
	}
	defer rows.Close()

	var out []*SelectedPackage
	for rows.Next() {
		sp, err := scanSelectedPackage(rows)
		if err != nil {
			return nil, err
		}
		if err := s.loadPrerequisites(ctx, sp); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// Dependents returns every selected package recorded in this store's own
// tables, in any configuration, whose prerequisite set contains
// (depConfigurationID, depName) — the reverse lookup required by §4.2 item
// ii and §4.5 "dependent discovery". Attached databases are not queried.
// Results include the configuration each dependent lives in.
func (s *Store) Dependents(ctx context.Context, depConfigurationID int64, depName manifest.Name) ([]*SelectedPackage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.configuration_id, sp.name, sp.version, sp.state, sp.substate,
		       sp.hold_package, sp.hold_version, sp.src_root, sp.out_root, sp.archive,
		       sp.alternative_selection, sp.config_variables, sp.config_checksum
		FROM selected_package sp
		JOIN selected_package_prerequisite pre
		  ON pre.configuration_id = sp.configuration_id AND pre.name = sp.name
		WHERE pre.dep_configuration_id = ? AND lower(pre.dep_name) = lower(?)
		ORDER BY lower(sp.name)`, depConfigurationID, string(depName))
	if err != nil {
		return nil, errors.Wrap(err, "store: querying dependents")
	}
	defer rows.Close()

	var out []*SelectedPackage
	for rows.Next() {
		sp, err := scanSelectedPackage(rows)
		if err != nil {
			return nil, err
		}
		if err := s.loadPrerequisites(ctx, sp); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) loadPrerequisites(ctx context.Context, sp *SelectedPackage) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dep_configuration_id, dep_name, constraint_text
		FROM selected_package_prerequisite WHERE configuration_id=? AND name=?`,
		sp.ConfigurationID, string(sp.Name))
	if err != nil {
		return errors.Wrap(err, "store: querying prerequisites")
	}
	defer rows.Close()
	for rows.Next() {
		var cfgID int64
		var depName string
		var constraintText sql.NullString
		if err := rows.Scan(&cfgID, &depName, &constraintText); err != nil {
			return errors.Wrap(err, "store: scanning prerequisite row")
		}
		var c version.Constraint
		if constraintText.Valid {
			c, err = version.Parse(constraintText.String, version.Default)
			if err != nil {
				return errors.Wrapf(err, "store: corrupt prerequisite constraint %q", constraintText.String)
			}
		}
		sp.Prerequisites = append(sp.Prerequisites, PrerequisiteRef{
			ConfigurationID: cfgID,
			Name:            manifest.Name(depName),
			Constraint:      c,
		})
	}
	return rows.Err()
}

func scanSelectedPackage(rows *sql.Rows) (*SelectedPackage, error) {
	var (
		cfgID                          int64
		name, ver, state, substate     string
		holdPkg, holdVer                int
		srcRoot, outRoot, archive       sql.NullString
		altJSON, cfgJSON, cfgChecksum   string
	)
	if err := rows.Scan(&cfgID, &name, &ver, &state, &substate, &holdPkg, &holdVer,
		&srcRoot, &outRoot, &archive, &altJSON, &cfgJSON, &cfgChecksum); err != nil {
		return nil, errors.Wrap(err, "store: scanning selected package row")
	}
	v, err := version.ParseVersion(ver)
	if err != nil {
		return nil, errors.Wrapf(err, "store: corrupt version %q for selected package %s", ver, name)
	}
	var alts []int
	if err := json.Unmarshal([]byte(altJSON), &alts); err != nil {
		return nil, errors.Wrap(err, "store: corrupt alternative_selection")
	}
	var vars []ConfigVariable
	if err := json.Unmarshal([]byte(cfgJSON), &vars); err != nil {
		return nil, errors.Wrap(err, "store: corrupt config_variables")
	}
	return &SelectedPackage{
		ConfigurationID:       cfgID,
		Name:                  manifest.Name(name),
		Version:               v,
		State:                 State(state),
		Substate:              Substate(substate),
		HoldPackage:           holdPkg != 0,
		HoldVersion:           holdVer != 0,
		SrcRoot:               srcRoot.String,
		OutRoot:               outRoot.String,
		Archive:               archive.String,
		AlternativeSelection:  alts,
		ConfigVariables:       vars,
		ConfigChecksum:        cfgChecksum,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
