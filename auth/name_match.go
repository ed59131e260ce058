package auth

import "strings"

// matchName reproduces the §4.3 name-mismatch algorithm: certName is the
// certificate's CN (expected form "name:<repo-name-prefix>" per §6, but
// this function operates on the bare name component after that prefix is
// stripped by the caller's repository layer); repoCanonicalName is the
// repository's canonical name.
//
// Both names are split at the first '/'. The leading components are
// compared using the wildcard rules; the trailing components (everything
// after the first '/') must be empty in the certificate, or a '/'-boundary
// prefix of the repository's trailing component.
func matchName(certName, repoCanonicalName string) error {
	certLead, certTail := splitFirst(certName)
	repoLead, repoTail := splitFirst(repoCanonicalName)

	if err := matchLeading(certLead, repoLead); err != nil {
		return err
	}
	if err := matchTrailing(certTail, repoTail); err != nil {
		return err
	}
	return nil
}

func splitFirst(s string) (lead, tail string) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// matchLeading implements the subdomain-wildcard rules:
//
//	"**"   matches any multi-level subdomain of repoLead, or repoLead itself
//	"*"    matches exactly one extra subdomain level, or repoLead itself
//	"**x"  (no '.' before x) matches any subdomain ending in x, or x itself
//	"*x"   matches exactly one subdomain level ending in x, or x itself
//	"**.x" matches any subdomain of x, but NOT x itself
//	"*.x"  matches exactly one subdomain level of x, but NOT x itself
func matchLeading(certLead, repoLead string) error {
	if certLead == repoLead {
		return nil
	}
	if !strings.HasPrefix(certLead, "*") {
		return errNameMismatch(certLead, repoLead)
	}

	multi := strings.HasPrefix(certLead, "**")
	rest := strings.TrimPrefix(certLead, "*")
	if multi {
		rest = strings.TrimPrefix(rest, "*")
	}

	selfAllowed := true
	suffix := rest
	if strings.HasPrefix(rest, ".") {
		selfAllowed = false
		suffix = strings.TrimPrefix(rest, ".")
	}

	if suffix == "" {
		// bare "*"/"**": matches any (single-/multi-level) subdomain,
		// or itself when self-match is allowed (it always is for the
		// bare wildcard form).
		if repoLead == "" {
			return errNameMismatch(certLead, repoLead)
		}
		if !multi && strings.Count(strings.TrimSuffix(repoLead, "."), ".") > 0 {
			// single-level wildcard: repoLead must itself be a single label
			// once we've already matched it wasn't equal to certLead; a
			// dotted repoLead is a multi-level subdomain, which only "**"
			// may match.
			return errNameMismatch(certLead, repoLead)
		}
		return nil
	}

	if repoLead == suffix {
		if selfAllowed {
			return nil
		}
		return errNameMismatch(certLead, repoLead)
	}
	if strings.HasSuffix(repoLead, "."+suffix) {
		sub := strings.TrimSuffix(repoLead, "."+suffix)
		if multi {
			return nil
		}
		if !strings.Contains(sub, ".") {
			return nil
		}
	}
	return errNameMismatch(certLead, repoLead)
}

// matchTrailing requires the certificate's trailing part to be empty, or a
// '/'-boundary prefix of the repository's trailing part.
func matchTrailing(certTail, repoTail string) error {
	if certTail == "" {
		return nil
	}
	if certTail == repoTail {
		return nil
	}
	if strings.HasPrefix(repoTail, certTail+"/") {
		return nil
	}
	return errNameMismatch(certTail, repoTail)
}

func errNameMismatch(cert, repo string) error {
	return &mismatchError{cert: cert, repo: repo}
}

type mismatchError struct{ cert, repo string }

func (e *mismatchError) Error() string {
	return "certificate name component " + quote(e.cert) + " does not match " + quote(e.repo)
}

func quote(s string) string { return "\"" + s + "\"" }
