package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Certificate is a persisted, user-authenticated repository certificate
// (§4.3, §6), keyed by its abbreviated fingerprint. A dummy record (no
// real certificate material) represents an unsigned repository, keyed by a
// hash of the repository location prefix.
type Certificate struct {
	ID          int64
	Fingerprint string
	Name        string
	Org         string
	Email       string
	Start       time.Time
	End         time.Time
}

// InsertCertificate persists a certificate record, keyed by fingerprint.
func (s *Store) InsertCertificate(ctx context.Context, c *Certificate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificate (fingerprint, name, org, email, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			name=excluded.name, org=excluded.org, email=excluded.email,
			start_time=excluded.start_time, end_time=excluded.end_time`,
		c.Fingerprint, c.Name, c.Org, c.Email,
		c.Start.UTC().Format(time.RFC3339), c.End.UTC().Format(time.RFC3339),
	)
	return errors.Wrapf(err, "store: persisting certificate %s", c.Fingerprint)
}

// CertificateByFingerprint loads a previously authenticated certificate, if
// any.
func (s *Store) CertificateByFingerprint(ctx context.Context, fingerprint string) (*Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, name, org, email, start_time, end_time
		FROM certificate WHERE fingerprint=?`, fingerprint)

	var c Certificate
	var start, end string
	var email sql.NullString
	if err := row.Scan(&c.ID, &c.Fingerprint, &c.Name, &c.Org, &email, &start, &end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "store: scanning certificate row")
	}
	c.Email = email.String
	var err error
	if c.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return nil, errors.Wrap(err, "store: corrupt certificate start time")
	}
	if c.End, err = time.Parse(time.RFC3339, end); err != nil {
		return nil, errors.Wrap(err, "store: corrupt certificate end time")
	}
	return &c, nil
}
