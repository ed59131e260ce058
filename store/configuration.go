package store

import (
	"context"

	"github.com/pkg/errors"
)

// ConfigurationType is the workspace type tag (§3, §4.5).
type ConfigurationType string

const (
	ConfigurationTarget  ConfigurationType = "target"
	ConfigurationHost    ConfigurationType = "host"
	ConfigurationBuild2  ConfigurationType = "build2"
)

// Configuration is one row of the `configuration` table: a linked workspace
// (§3, §6). The self-link always has ID 0.
type Configuration struct {
	ID       int64
	UUID     string
	Name     string
	Type     ConfigurationType
	Path     string
	Explicit bool
}

// SelfConfigurationID is the reserved ID of a workspace's own entry within
// its own store.
const SelfConfigurationID int64 = 0

// InsertConfiguration records a newly linked (or newly created private)
// workspace.
func (s *Store) InsertConfiguration(ctx context.Context, c *Configuration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO configuration (uuid, name, type, path, explicit) VALUES (?, ?, ?, ?, ?)`,
		c.UUID, nullableString(c.Name), string(c.Type), c.Path, boolToInt(c.Explicit))
	if err != nil {
		return 0, errors.Wrapf(err, "store: inserting configuration %s", c.Path)
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "store: reading inserted configuration id")
}

// Link records that parentID links to childID, explicit or implicit (§4.2).
func (s *Store) Link(ctx context.Context, parentID, childID int64, explicit bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO configuration_link (parent_id, child_id, explicit) VALUES (?, ?, ?)
		ON CONFLICT (parent_id, child_id) DO UPDATE SET explicit=excluded.explicit`,
		parentID, childID, boolToInt(explicit))
	return errors.Wrap(err, "store: linking configurations")
}

// LinkedConfigurations returns every workspace linked from parentID,
// annotated with whether the link is explicit.
func (s *Store) LinkedConfigurations(ctx context.Context, parentID int64) ([]*Configuration, []bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.uuid, c.name, c.type, c.path, c.explicit, l.explicit
		FROM configuration_link l JOIN configuration c ON c.id = l.child_id
		WHERE l.parent_id = ?`, parentID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "store: querying linked configurations")
	}
	defer rows.Close()

	var cfgs []*Configuration
	var explicitLink []bool
	for rows.Next() {
		var c Configuration
		var name nullString
		var typ string
		var explicitSelf int
		var explicitL int
		if err := rows.Scan(&c.ID, &c.UUID, &name, &typ, &c.Path, &explicitSelf, &explicitL); err != nil {
			return nil, nil, errors.Wrap(err, "store: scanning linked configuration row")
		}
		c.Name = string(name)
		c.Type = ConfigurationType(typ)
		c.Explicit = explicitSelf != 0
		cfgs = append(cfgs, &c)
		explicitLink = append(explicitLink, explicitL != 0)
	}
	return cfgs, explicitLink, rows.Err()
}

// RemoveDanglingImplicitLink removes the implicit link from parentID to
// childID (an explicit link is left in place). It does not check whether
// the target directory exists and emits no warning.
func (s *Store) RemoveDanglingImplicitLink(ctx context.Context, parentID, childID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM configuration_link WHERE parent_id=? AND child_id=? AND explicit=0`,
		parentID, childID)
	return errors.Wrap(err, "store: removing dangling implicit link")
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullString scans a nullable TEXT column into an empty string.
type nullString string

func (n *nullString) Scan(v interface{}) error {
	if v == nil {
		*n = ""
		return nil
	}
	switch t := v.(type) {
	case string:
		*n = nullString(t)
	case []byte:
		*n = nullString(t)
	default:
		return errors.Errorf("store: unexpected type %T for nullable string", v)
	}
	return nil
}
