package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func selfSignedPEM(t *testing.T, cn string, notBefore, notAfter time.Time) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Example Org"}},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestAuthenticateValidCertificate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pemCert := selfSignedPEM(t, "example.org", now.Add(-time.Hour), now.Add(time.Hour))

	a := New(nil, nil)
	rec, err := a.Authenticate(FixedClock(now), "example.org", "https://example.org/repo/1", pemCert, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if rec.Name != "example.org" {
		t.Errorf("expected certificate name example.org, got %s", rec.Name)
	}
}

func TestAuthenticateExpiredCertificateFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pemCert := selfSignedPEM(t, "example.org", now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	a := New(nil, nil)
	_, err := a.Authenticate(FixedClock(now), "example.org", "https://example.org/repo", pemCert, "")
	var authErr *Error
	if err == nil {
		t.Fatal("expected expired-certificate failure")
	}
	if !asAuthError(err, &authErr) || authErr.Kind != FailureExpired {
		t.Errorf("expected FailureExpired, got %v", err)
	}
}

func TestAuthenticateNameMismatchWithoutConfirmFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pemCert := selfSignedPEM(t, "other.example", now.Add(-time.Hour), now.Add(time.Hour))

	a := New(nil, nil)
	_, err := a.Authenticate(FixedClock(now), "example.org", "https://example.org/repo", pemCert, "")
	var authErr *Error
	if err == nil || !asAuthError(err, &authErr) || authErr.Kind != FailureNameMismatch {
		t.Errorf("expected FailureNameMismatch, got %v", err)
	}
}

func TestAuthenticateNameMismatchWithConfirmSucceeds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pemCert := selfSignedPEM(t, "other.example", now.Add(-time.Hour), now.Add(time.Hour))

	a := New(nil, func(string) bool { return true })
	if _, err := a.Authenticate(FixedClock(now), "example.org", "https://example.org/repo", pemCert, ""); err != nil {
		t.Errorf("expected confirmation to allow trust, got error: %v", err)
	}
}

func TestAuthenticateUnsignedRepositoryWithoutConfirmRefuses(t *testing.T) {
	a := New(nil, func(string) bool { return false })
	_, err := a.Authenticate(RealClock(), "example.org", "https://example.org/repo", "", "")
	var authErr *Error
	if err == nil || !asAuthError(err, &authErr) || authErr.Kind != FailureUserRefusal {
		t.Errorf("expected FailureUserRefusal, got %v", err)
	}
}

func TestAuthenticateUnsignedRepositoryDummyFingerprintIsStable(t *testing.T) {
	a := New(nil, func(string) bool { return true })
	r1, err := a.Authenticate(RealClock(), "example.org", "https://example.org/repo/1.0", "", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	r2, err := a.Authenticate(RealClock(), "example.org", "https://example.org/repo/2.0", "", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if r1.Fingerprint != r2.Fingerprint {
		t.Errorf("expected stable dummy fingerprint across version-prefixed locations, got %s vs %s", r1.Fingerprint, r2.Fingerprint)
	}
}

func asAuthError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
