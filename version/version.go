// Package version implements the five-component package version scheme
// (epoch, upstream, release, revision, iteration) and the interval-style
// constraint algebra used throughout the resolver.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a single, fully specified package version.
//
// Release == nil denotes a final (non-pre-release) version. Revision == nil
// and Revision == 0 compare equally but are formatted differently, matching
// the "present but zero" distinction a display layer needs.
type Version struct {
	Epoch      uint16
	Upstream   string
	Release    *string
	Revision   *uint16
	Iteration  uint32
	wildcard   bool
}

// Wildcard is the distinguished version that compares equal to any
// constraint (used for system packages and "don't care" selections).
var Wildcard = Version{wildcard: true}

// IsWildcard reports whether v is the wildcard version.
func (v Version) IsWildcard() bool { return v.wildcard }

// CompareOptions tunes which low-significance components participate in a
// comparison. By default revision and iteration both participate; pkg
// authors sometimes want version identity without caring about rebuilds.
type CompareOptions struct {
	Revision  bool
	Iteration bool
}

// Default compares every component.
var Default = CompareOptions{Revision: true, Iteration: true}

func canonUpstream(s string) string {
	// Strip a leading "v": purely a normalization so that "v1.2" and "1.2"
	// compare equal. Separators and significant digits are never altered.
	s = strings.TrimPrefix(s, "v")
	return s
}

func splitNumeric(s string) []interface{} {
	// Tokenizes "1.2.3-rc1" style strings into alternating numeric/string
	// runs so that "2" < "10" holds numerically rather than lexically.
	var out []interface{}
	i := 0
	for i < len(s) {
		if s[i] >= '0' && s[i] <= '9' {
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 10, 64)
			out = append(out, n)
			i = j
		} else {
			j := i
			for j < len(s) && !(s[j] >= '0' && s[j] <= '9') {
				j++
			}
			out = append(out, s[i:j])
			i = j
		}
	}
	return out
}

func compareTokens(a, b []interface{}) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch av := a[i].(type) {
		case uint64:
			bv, ok := b[i].(uint64)
			if !ok {
				// numeric sorts before alpha at the same position
				return -1
			}
			if av != bv {
				if av < bv {
					return -1
				}
				return 1
			}
		case string:
			bv, ok := b[i].(string)
			if !ok {
				return 1
			}
			if av != bv {
				if av < bv {
					return -1
				}
				return 1
			}
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return 0
}

// Compare orders a against b. The wildcard version is not comparable in the
// usual sense; callers must special-case it via IsWildcard before calling
// Compare.
func Compare(a, b Version, opts CompareOptions) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}

	if c := compareTokens(splitNumeric(canonUpstream(a.Upstream)), splitNumeric(canonUpstream(b.Upstream))); c != 0 {
		return c
	}

	// Absent release (final) sorts greater than any specified pre-release.
	switch {
	case a.Release == nil && b.Release == nil:
		// equal
	case a.Release == nil:
		return 1
	case b.Release == nil:
		return -1
	default:
		if c := compareTokens(splitNumeric(*a.Release), splitNumeric(*b.Release)); c != 0 {
			return c
		}
	}

	if opts.Revision {
		ar, br := revOf(a.Revision), revOf(b.Revision)
		if ar != br {
			if ar < br {
				return -1
			}
			return 1
		}
	}

	if opts.Iteration {
		if a.Iteration != b.Iteration {
			if a.Iteration < b.Iteration {
				return -1
			}
			return 1
		}
	}

	return 0
}

func revOf(r *uint16) uint16 {
	if r == nil {
		return 0
	}
	return *r
}

// Equal reports whether a and b compare equal under opts. The wildcard
// version is equal to everything.
func Equal(a, b Version, opts CompareOptions) bool {
	if a.IsWildcard() || b.IsWildcard() {
		return true
	}
	return Compare(a, b, opts) == 0
}

// Format renders the canonical textual form: "[epoch~]upstream[-release][+revision][#iteration]",
// matching build2's own epoch/revision separators so "+" (revision) can
// never be confused with the epoch prefix even when upstream is all digits.
// Revision is rendered only when explicitly present (even if zero), to
// preserve the display-vs-comparison distinction the data model calls for.
func (v Version) Format() string {
	if v.wildcard {
		return "*"
	}
	var b strings.Builder
	if v.Epoch > 0 {
		fmt.Fprintf(&b, "%d~", v.Epoch)
	}
	b.WriteString(v.Upstream)
	if v.Release != nil {
		b.WriteByte('-')
		b.WriteString(*v.Release)
	}
	if v.Revision != nil {
		fmt.Fprintf(&b, "+%d", *v.Revision)
	}
	if v.Iteration > 0 {
		fmt.Fprintf(&b, "#%d", v.Iteration)
	}
	return b.String()
}

func (v Version) String() string { return v.Format() }

// ParseVersion reads the canonical textual form produced by Format. It is
// the round-trip inverse required by the "round-trip for versions" testable
// property.
func ParseVersion(s string) (Version, error) {
	if s == "*" {
		return Wildcard, nil
	}
	var v Version
	rest := s

	if i := strings.IndexByte(rest, '~'); i >= 0 {
		n, err := strconv.ParseUint(rest[:i], 10, 16)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid epoch in version %q", s)
		}
		v.Epoch = uint16(n)
		rest = rest[i+1:]
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		n, err := strconv.ParseUint(rest[i+1:], 10, 32)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid iteration in version %q", s)
		}
		v.Iteration = uint32(n)
		rest = rest[:i]
	}

	if i := strings.LastIndexByte(rest, '+'); i >= 0 {
		n, err := strconv.ParseUint(rest[i+1:], 10, 16)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid revision in version %q", s)
		}
		rv := uint16(n)
		v.Revision = &rv
		rest = rest[:i]
	}

	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rel := rest[i+1:]
		v.Release = &rel
		rest = rest[:i]
	}

	if rest == "" {
		return Version{}, errors.Errorf("version %q has no upstream component", s)
	}
	v.Upstream = rest
	return v, nil
}

// SortForUpgrade orders versions with the most preferred upgrade candidate
// first (highest version first).
func SortForUpgrade(vs []Version) {
	sortBy(vs, func(a, b Version) bool { return Compare(a, b, Default) > 0 })
}

// SortForDowngrade orders versions with the least preferred candidate first
// (lowest version first).
func SortForDowngrade(vs []Version) {
	sortBy(vs, func(a, b Version) bool { return Compare(a, b, Default) < 0 })
}

func sortBy(vs []Version, less func(a, b Version) bool) {
	// insertion sort: the slices the resolver sorts are small (candidate
	// lists per package name), and a stable, allocation-free sort keeps
	// ties in discovery order.
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && less(vs[j], vs[j-1]); j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}
