package version

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Constraint is a set of versions. Implementations: Interval, and the two
// sentinels Any and None.
type Constraint interface {
	// Matches reports whether v is a member of the constraint's set.
	Matches(v Version) bool
	// Intersect returns the constraint representing the intersection of the
	// receiver and other. An empty intersection yields None.
	Intersect(other Constraint) Constraint
	// String renders the canonical textual form.
	String() string
}

type anyConstraint struct{}

// Any is the wildcard constraint ("*"): it matches every version.
var Any Constraint = anyConstraint{}

func (anyConstraint) Matches(Version) bool             { return true }
func (anyConstraint) Intersect(other Constraint) Constraint { return other }
func (anyConstraint) String() string                   { return "*" }

type noneConstraint struct{}

// None is the empty constraint: it matches nothing. Intersect always
// collapsing to None is how an unsatisfiable combination of constraints is
// represented.
var None Constraint = noneConstraint{}

func (noneConstraint) Matches(Version) bool                { return false }
func (noneConstraint) Intersect(Constraint) Constraint      { return None }
func (noneConstraint) String() string                       { return "<none>" }

// Interval is a half-open-or-closed range [Min, Max] over the version
// ordering. A nil bound is unbounded on that side.
type Interval struct {
	Min, Max         *Version
	MinOpen, MaxOpen bool
	opts             CompareOptions
}

// NewInterval builds an Interval, canonicalizing `== v` (Min==Max, both
// closed) and `*` (both bounds nil) forms implicitly by returning Any/a
// singleton-shaped Interval as appropriate.
func NewInterval(min, max *Version, minOpen, maxOpen bool, opts CompareOptions) Constraint {
	if min == nil && max == nil {
		return Any
	}
	if min != nil && max != nil && !minOpen && !maxOpen && Equal(*min, *max, opts) {
		return Singleton(*min, opts)
	}
	if min != nil && max != nil {
		c := Compare(*min, *max, opts)
		if c > 0 || (c == 0 && (minOpen || maxOpen)) {
			return None
		}
	}
	return Interval{Min: min, Max: max, MinOpen: minOpen, MaxOpen: maxOpen, opts: opts}
}

// Singleton returns the `== v` constraint.
func Singleton(v Version, opts CompareOptions) Constraint {
	vv := v
	return Interval{Min: &vv, Max: &vv, opts: opts}
}

func (iv Interval) Matches(v Version) bool {
	if v.IsWildcard() {
		return true
	}
	if iv.Min != nil {
		c := Compare(v, *iv.Min, iv.opts)
		if c < 0 || (c == 0 && iv.MinOpen) {
			return false
		}
	}
	if iv.Max != nil {
		c := Compare(v, *iv.Max, iv.opts)
		if c > 0 || (c == 0 && iv.MaxOpen) {
			return false
		}
	}
	return true
}

// Intersect computes the intersection of two constraints. It is commutative
// and associative, and intersecting with Any is the identity, per the
// "round-trip for constraints" testable property.
func (iv Interval) Intersect(other Constraint) Constraint {
	switch o := other.(type) {
	case anyConstraint:
		return iv
	case noneConstraint:
		return None
	case Interval:
		min, minOpen := pickMax(iv.Min, iv.MinOpen, o.Min, o.MinOpen, iv.opts)
		max, maxOpen := pickMin(iv.Max, iv.MaxOpen, o.Max, o.MaxOpen, iv.opts)
		return NewInterval(min, max, minOpen, maxOpen, iv.opts)
	default:
		return None
	}
}

// pickMax returns the tighter (larger) of two lower bounds.
func pickMax(a *Version, aOpen bool, b *Version, bOpen bool, opts CompareOptions) (*Version, bool) {
	if a == nil {
		return b, bOpen
	}
	if b == nil {
		return a, aOpen
	}
	c := Compare(*a, *b, opts)
	switch {
	case c > 0:
		return a, aOpen
	case c < 0:
		return b, bOpen
	default:
		return a, aOpen || bOpen
	}
}

// pickMin returns the tighter (smaller) of two upper bounds.
func pickMin(a *Version, aOpen bool, b *Version, bOpen bool, opts CompareOptions) (*Version, bool) {
	if a == nil {
		return b, bOpen
	}
	if b == nil {
		return a, aOpen
	}
	c := Compare(*a, *b, opts)
	switch {
	case c < 0:
		return a, aOpen
	case c > 0:
		return b, bOpen
	default:
		return a, aOpen || bOpen
	}
}

func (iv Interval) String() string {
	if iv.Min != nil && iv.Max != nil && !iv.MinOpen && !iv.MaxOpen && Equal(*iv.Min, *iv.Max, iv.opts) {
		return "== " + iv.Min.Format()
	}
	var parts []string
	if iv.Min != nil {
		op := ">="
		if iv.MinOpen {
			op = ">"
		}
		parts = append(parts, fmt.Sprintf("%s%s", op, iv.Min.Format()))
	}
	if iv.Max != nil {
		op := "<="
		if iv.MaxOpen {
			op = "<"
		}
		parts = append(parts, fmt.Sprintf("%s%s", op, iv.Max.Format()))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}

// Parse parses the textual constraint grammar: "*", "== v", or a
// comma-separated list of ">=v", ">v", "<=v", "<v" bounds.
func Parse(s string, opts CompareOptions) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Any, nil
	}
	if strings.HasPrefix(s, "==") {
		v, err := ParseVersion(strings.TrimSpace(s[2:]))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing singleton constraint %q", s)
		}
		return Singleton(v, opts), nil
	}

	var min, max *Version
	var minOpen, maxOpen bool
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		var op string
		switch {
		case strings.HasPrefix(part, ">="):
			op, part = ">=", part[2:]
		case strings.HasPrefix(part, ">"):
			op, part = ">", part[1:]
		case strings.HasPrefix(part, "<="):
			op, part = "<=", part[2:]
		case strings.HasPrefix(part, "<"):
			op, part = "<", part[1:]
		default:
			return nil, errors.Errorf("unrecognized constraint clause %q in %q", part, s)
		}
		v, err := ParseVersion(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing constraint %q", s)
		}
		switch op {
		case ">=":
			min, minOpen = &v, false
		case ">":
			min, minOpen = &v, true
		case "<=":
			max, maxOpen = &v, false
		case "<":
			max, maxOpen = &v, true
		}
	}
	return NewInterval(min, max, minOpen, maxOpen, opts), nil
}
