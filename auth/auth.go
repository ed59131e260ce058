// Package auth implements repository authentication (§4.3): given a
// repository location, an optional PEM certificate, and an optional
// fingerprint of an already-trusted dependent repository, it decides
// whether to trust the repository and returns the certificate record to
// persist.
//
// Cryptographic signature verification over the repository's manifest
// bytes is an external collaborator (§1 Non-goals); this package only
// answers "authenticate this repository/fingerprint".
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/store"
)

// FailureKind enumerates the taxonomy of authentication failures (§7).
type FailureKind string

const (
	FailureUnparseable FailureKind = "unparseable_certificate"
	FailureExpired     FailureKind = "expired_certificate"
	FailureNameMismatch FailureKind = "name_mismatch"
	FailureUserRefusal FailureKind = "user_refusal"
)

// Error wraps a FailureKind with diagnostic context.
type Error struct {
	Kind FailureKind
	Repo string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s for %s: %v", e.Kind, e.Repo, e.Err)
	}
	return fmt.Sprintf("auth: %s for %s", e.Kind, e.Repo)
}

func (e *Error) Unwrap() error { return e.Err }

// Confirm asks whether the user accepts a certificate that failed
// automatic validation (e.g. on name mismatch, or no certificate at all).
// The CLI/driver layer supplies the actual prompt; the core only needs the
// yes/no answer, matching §1's "the core only asks... the CLI front-end...
// is out of scope".
type Confirm func(prompt string) bool

// Authenticator evaluates repository certificates against a store of
// previously trusted fingerprints.
type Authenticator struct {
	Store   *store.Store
	Confirm Confirm
}

// New builds an Authenticator persisting trust decisions into st.
func New(st *store.Store, confirm Confirm) *Authenticator {
	return &Authenticator{Store: st, Confirm: confirm}
}

// Authenticate authenticates repoName/repoLocation using pemCert (may be
// empty for an unsigned repository) and, if the repository was reached
// through an already-trusted dependent repository, trustedFingerprint.
// It returns the certificate record to persist.
func (a *Authenticator) Authenticate(clock Clock, repoName, repoLocation, pemCert, trustedFingerprint string) (*store.Certificate, error) {
	if pemCert == "" {
		return a.authenticateUnsigned(repoName, repoLocation)
	}

	cert, err := parsePEM(pemCert)
	if err != nil {
		return nil, &Error{Kind: FailureUnparseable, Repo: repoName, Err: err}
	}

	now := clock.now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, &Error{Kind: FailureExpired, Repo: repoName}
	}

	fp := Fingerprint(cert)

	if trustedFingerprint != "" && fp == trustedFingerprint {
		return a.persist(cert, fp)
	}

	if err := matchName(strings.TrimPrefix(cert.Subject.CommonName, "name:"), repoName); err != nil {
		if a.Confirm == nil || !a.Confirm(fmt.Sprintf("certificate name %q does not match repository %q; trust anyway?", cert.Subject.CommonName, repoName)) {
			return nil, &Error{Kind: FailureNameMismatch, Repo: repoName, Err: err}
		}
	}

	return a.persist(cert, fp)
}

func (a *Authenticator) persist(cert *x509.Certificate, fingerprint string) (*store.Certificate, error) {
	rec := &store.Certificate{
		Fingerprint: fingerprint,
		Name:        cert.Subject.CommonName,
		Org:         strings.Join(cert.Subject.Organization, ","),
		Start:       cert.NotBefore,
		End:         cert.NotAfter,
	}
	if a.Store != nil {
		if err := a.Store.InsertCertificate(context.TODO(), rec); err != nil {
			return nil, errors.Wrap(err, "auth: persisting certificate")
		}
	}
	return rec, nil
}

// authenticateUnsigned builds a dummy certificate record for a repository
// with no certificate, keyed by a hash of the repository location prefix
// up to the version component (§4.3).
func (a *Authenticator) authenticateUnsigned(repoName, repoLocation string) (*store.Certificate, error) {
	if a.Confirm != nil && !a.Confirm(fmt.Sprintf("repository %q is unsigned; continue?", repoName)) {
		return nil, &Error{Kind: FailureUserRefusal, Repo: repoName}
	}
	key := LocationPrefix(repoLocation)
	sum := sha256.Sum256([]byte(key))
	rec := &store.Certificate{
		Fingerprint: "dummy:" + hex.EncodeToString(sum[:8]),
		Name:        repoName,
	}
	if a.Store != nil {
		if err := a.Store.InsertCertificate(context.TODO(), rec); err != nil {
			return nil, errors.Wrap(err, "auth: persisting dummy certificate")
		}
	}
	return rec, nil
}

// LocationPrefix returns the repository location truncated before its
// version component (the part after the last '/' that looks like a
// version segment), used to key dummy certificates for unsigned
// repositories so that reconfigured mirrors of the same logical repository
// still share a fingerprint.
func LocationPrefix(location string) string {
	i := strings.LastIndex(location, "/")
	if i < 0 {
		return location
	}
	tail := location[i+1:]
	if looksLikeVersionSegment(tail) {
		return location[:i]
	}
	return location
}

func looksLikeVersionSegment(s string) bool {
	return len(s) > 0 && (s[0] >= '0' && s[0] <= '9')
}

func parsePEM(s string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing DER certificate")
	}
	return cert, nil
}

// Fingerprint computes the abbreviated fingerprint a certificate is keyed
// by in the store.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:10])
}

// Clock lets tests fix the authentication clock used for expiry checks.
type Clock struct {
	Now func() time.Time
}

func (c Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// RealClock is the default Clock (real wall clock).
func RealClock() Clock { return Clock{} }

// FixedClock returns a Clock fixed at t, for deterministic tests.
func FixedClock(t time.Time) Clock { return Clock{Now: func() time.Time { return t }} }
