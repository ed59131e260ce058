// Package store implements the single-writer, exclusively-locked embedded
// relational store described in spec §4.2: selected packages, available
// packages, repository fragments, trusted certificates, and links between
// workspaces.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/theckman/go-flock"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInUse is returned by Open when another process already holds the
// workspace's exclusive lock, per §5 "already in use".
var ErrInUse = errors.New("store: workspace already in use")

// Store is one open, single-writer connection onto a workspace's
// bpkg.sqlite3 database, plus the set of linked-workspace databases attached
// into the same sqlite connection under deterministic schema prefixes. The
// union of attached workspaces is the cluster (§4.2).
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	lock *flock.Flock
	root string

	// attached maps a linked workspace's canonical path to the schema
	// prefix it was ATTACHed under.
	attached map[string]string
}

// Open opens (creating if necessary) the store rooted at <root>/bpkg. It
// acquires a process-exclusive OS-level lock for the lifetime of the
// returned Store; Close releases it.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, "bpkg")
	lockPath := filepath.Join(dir, "bpkg.lock")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "store: creating %s", dir)
	}

	fl := flock.NewFlock(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "store: acquiring lock %s", lockPath)
	}
	if !locked {
		return nil, ErrInUse
	}

	dbPath := filepath.Join(dir, "bpkg.sqlite3")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fl.Unlock()
		return nil, errors.Wrapf(err, "store: opening %s", dbPath)
	}
	db.SetMaxOpenConns(1) // single-writer: one connection, serialized access

	s := &Store{db: db, lock: fl, root: root, attached: map[string]string{}}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "store: setting migration dialect")
	}
	cur, err := goose.GetDBVersion(s.db)
	if err != nil {
		return errors.Wrap(err, "store: reading schema version")
	}
	latest, err := goose.GetLatestVersion(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "store: reading latest migration version")
	}
	if cur > latest {
		return errors.Errorf("store: schema version %d is newer than this tool supports (%d)", cur, latest)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return errors.Wrap(err, "store: migrating schema")
	}
	return nil
}

// Close releases the database connection and the exclusive lock.
func (s *Store) Close() error {
	var errs []error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "store: close")
	}
	return nil
}

// Attach brings a linked workspace's database into this connection's
// cluster under a unique, deterministic schema prefix derived from its
// filesystem path, so that cross-workspace queries (dependent lookup,
// selected-package joins) can run in a single statement.
func (s *Store) Attach(path string) (prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "store: resolving linked workspace path %s", path)
	}
	if p, ok := s.attached[abs]; ok {
		return p, nil
	}

	prefix = schemaPrefix(abs)
	dbPath := filepath.Join(abs, "bpkg", "bpkg.sqlite3")
	stmt := fmt.Sprintf("ATTACH DATABASE ? AS %s", prefix)
	if _, err := s.db.Exec(stmt, dbPath); err != nil {
		return "", errors.Wrapf(err, "store: attaching linked workspace %s", abs)
	}
	s.attached[abs] = prefix
	return prefix, nil
}

// schemaPrefix derives a short, deterministic, SQL-identifier-safe prefix
// from a workspace path, so the same linked workspace always attaches under
// the same name across runs.
func schemaPrefix(path string) string {
	h := fnv32a(path)
	return fmt.Sprintf("ws_%08x", h)
}

func fnv32a(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// NewConfigurationUUID mints a UUID for a newly created private or linked
// configuration (§3 "Workspace (configuration)").
func NewConfigurationUUID() string {
	return uuid.NewString()
}

// DB exposes the underlying *sql.DB for packages (e.g. the executor) that
// need to run ad hoc statements within the store's single-writer
// connection. All mutating operations still go through one transaction.
func (s *Store) DB() *sql.DB { return s.db }
