// Package manifest parses the available-package manifest wire format (§6)
// and models the declared dependency alternative groups a package skeleton
// and the resolver operate over.
package manifest

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/version"
)

// Name is a package name: case-insensitive for equality and ordering,
// preserved case for display.
type Name string

// Equal compares two names case-insensitively.
func (n Name) Equal(o Name) bool { return strings.EqualFold(string(n), string(o)) }

// Key returns the lower-cased comparison key for n, suitable for use as a
// map key or sort key.
func (n Name) Key() string { return strings.ToLower(string(n)) }

// Language describes one implementation or interface language a package
// provides.
type Language struct {
	Name          string
	Implementation bool
}

// Dependency is one `(name, constraint?)` pair within an alternative.
type Dependency struct {
	Name       Name
	Constraint version.Constraint // nil means unconstrained (any)
}

// Alternative is one way of satisfying a dependency alternative group.
type Alternative struct {
	Deps []Dependency

	// Enable is the raw enable-expression source, evaluated by a skeleton.
	// Empty means "always enabled".
	Enable string

	// Reflect is the raw reflect-fragment source (e.g. "config.foo.api=bar").
	Reflect string

	// Prefer/Accept form a configuration-negotiation pair; Require is the
	// restricted boolean-only alternative to Prefer/Accept. At most one of
	// (Prefer+Accept) or Require is set.
	Prefer  string
	Accept  string
	Require string
}

// HasConfigClause reports whether this alternative carries a prefer/accept
// or require clause, which is what makes its dependency a configuration
// cluster member (§4.6.2).
func (a Alternative) HasConfigClause() bool {
	return a.Require != "" || (a.Prefer != "" && a.Accept != "")
}

// AlternativeGroup is an ordered list of mutually exclusive alternatives
// satisfying one declared `depends` clause.
type AlternativeGroup struct {
	Alternatives []Alternative
	// BuildTime routes lookups for this group's dependencies into the
	// host/build2 workspace rather than the dependent's own workspace.
	BuildTime bool
}

// PackageType enumerates the kinds available packages may declare.
type PackageType string

const (
	TypeExe   PackageType = "exe"
	TypeLib   PackageType = "lib"
	TypeTests PackageType = "tests"
)

// AvailablePackage is an immutable `(name, version)` record as parsed from a
// repository manifest.
type AvailablePackage struct {
	Name        Name
	Version     version.Version
	Type        PackageType
	Languages   []Language
	ProjectName string

	Dependencies []AlternativeGroup

	// TestDependencyType/TestDependencyIndex echo the optional header
	// fields used to mark which dependency group (if any) is a
	// test-only addition, per §6.
	TestDependencyType  string
	TestDependencyIndex int

	BootFragment string
	RootFragment string

	SHA256 string

	Locations []string
}

// Header is the manifest's leading metadata block, present before the
// package manifest body.
type Header struct {
	Version             int
	TestDependencyType   string
	TestDependencyIndex  int
}

// Parse reads one available-package manifest from r. Unknown header values
// are ignored for forward compatibility; structural parse failures are
// fatal, per §6.
func Parse(r io.Reader) (*AvailablePackage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	pkg := &AvailablePackage{}
	hdr := Header{}
	sawVersion := false

	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		key, val, err := splitField(trimmed)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest: malformed line %q", line)
		}

		switch key {
		case "version":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: invalid version header %q", val)
			}
			hdr.Version = n
			sawVersion = true
		case "test-dependency-type":
			hdr.TestDependencyType = val
		case "test-dependency-index":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: invalid test-dependency-index %q", val)
			}
			hdr.TestDependencyIndex = n
		case "name":
			pkg.Name = Name(val)
		case "version-value":
			v, err := version.ParseVersion(val)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: invalid package version %q", val)
			}
			pkg.Version = v
		case "version-semver":
			// A fragment mirroring a semver-speaking source (e.g. a Go
			// module proxy) advertises its version this way instead of the
			// native version-value form.
			sv, err := semver.NewVersion(val)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: invalid semver package version %q", val)
			}
			pkg.Version = version.FromSemver(sv)
		case "type":
			pkg.Type = PackageType(val)
		case "project":
			pkg.ProjectName = val
		case "language":
			pkg.Languages = append(pkg.Languages, parseLanguage(val))
		case "depends":
			group, err := parseDependsLine(val)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: bad depends clause %q", val)
			}
			pkg.Dependencies = append(pkg.Dependencies, group)
		case "build-depends":
			group, err := parseDependsLine(val)
			if err != nil {
				return nil, errors.Wrapf(err, "manifest: bad build-depends clause %q", val)
			}
			group.BuildTime = true
			pkg.Dependencies = append(pkg.Dependencies, group)
		case "boot":
			pkg.BootFragment = val
		case "root":
			pkg.RootFragment = val
		case "sha256":
			pkg.SHA256 = val
		case "location":
			pkg.Locations = append(pkg.Locations, val)
		default:
			// unknown fields are ignored for forward compatibility
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "manifest: scan failed")
	}
	if !sawVersion {
		return nil, errors.New("manifest: missing required version header")
	}
	pkg.TestDependencyType = hdr.TestDependencyType
	pkg.TestDependencyIndex = hdr.TestDependencyIndex
	return pkg, nil
}

func splitField(line string) (key, val string, err error) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", errors.Errorf("expected \"key: value\"")
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), nil
}

func parseLanguage(s string) Language {
	impl := true
	if strings.HasSuffix(s, "(interface)") {
		impl = false
		s = strings.TrimSpace(strings.TrimSuffix(s, "(interface)"))
	}
	return Language{Name: s, Implementation: impl}
}

// parseDependsLine parses one "depends:" clause body into an
// AlternativeGroup. Grammar (§4.6.1 / spec example 3):
//
//	alt (' | ' alt)*
//	alt       := dep (',' dep)* ['?' '(' enable ')' [clause]]
//	dep       := name [constraint]
//	clause    := 'prefer:' prefer ['accept:' accept] | 'require:' require | reflect
//	reflect   := 'config.' ident '=' value
func parseDependsLine(s string) (AlternativeGroup, error) {
	var group AlternativeGroup
	for _, altSrc := range strings.Split(s, "|") {
		alt, err := parseAlternative(strings.TrimSpace(altSrc))
		if err != nil {
			return group, err
		}
		group.Alternatives = append(group.Alternatives, alt)
	}
	return group, nil
}

func parseAlternative(s string) (Alternative, error) {
	var alt Alternative

	depsPart := s
	if i := strings.IndexByte(s, '?'); i >= 0 {
		depsPart = strings.TrimSpace(s[:i])
		rest := strings.TrimSpace(s[i+1:])
		if !strings.HasPrefix(rest, "(") {
			return alt, errors.Errorf("expected '(' after '?' in %q", s)
		}
		j, depth := -1, 0
		for k := 0; k < len(rest); k++ {
			if rest[k] == '(' {
				depth++
			} else if rest[k] == ')' {
				depth--
				if depth == 0 {
					j = k
					break
				}
			}
		}
		if j < 0 {
			return alt, errors.Errorf("unterminated enable expression in %q", s)
		}
		alt.Enable = rest[1:j]
		trailer := strings.TrimSpace(rest[j+1:])
		if trailer != "" {
			switch {
			case strings.HasPrefix(trailer, "prefer:"):
				body := strings.TrimSpace(strings.TrimPrefix(trailer, "prefer:"))
				if k := strings.Index(body, "accept:"); k >= 0 {
					alt.Prefer = strings.TrimSpace(body[:k])
					alt.Accept = strings.TrimSpace(body[k+len("accept:"):])
				} else {
					alt.Prefer = body
				}
			case strings.HasPrefix(trailer, "require:"):
				alt.Require = strings.TrimSpace(strings.TrimPrefix(trailer, "require:"))
			default:
				// bare "config.x=y" shorthand is a reflect assignment
				alt.Reflect = trailer
			}
		}
	}

	for _, depSrc := range strings.Split(depsPart, ",") {
		depSrc = strings.TrimSpace(depSrc)
		if depSrc == "" {
			continue
		}
		dep, err := parseDependency(depSrc)
		if err != nil {
			return alt, err
		}
		alt.Deps = append(alt.Deps, dep)
	}
	return alt, nil
}

func parseDependency(s string) (Dependency, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Dependency{}, errors.New("empty dependency clause")
	}
	dep := Dependency{Name: Name(fields[0])}
	if len(fields) > 1 {
		c, err := version.Parse(strings.Join(fields[1:], " "), version.Default)
		if err != nil {
			return Dependency{}, errors.Wrapf(err, "parsing constraint for %q", fields[0])
		}
		dep.Constraint = c
	}
	return dep, nil
}
