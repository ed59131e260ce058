package skeleton

import (
	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
)

// Driver is the opaque build-system callback the skeleton delegates actual
// project loading to (§9 design note). The core only needs this interface;
// the real build-system driver that compiles code is an external
// collaborator (§1 Non-goals).
type Driver interface {
	// Load materializes enough of the package's boot/root build fragments
	// on disk, under cfg, to answer subsequent expression evaluations.
	// Returns diagnostics without error for a merely "not sensible"
	// configuration; returns error only for structural failures (missing
	// fragment, I/O failure).
	Load(pkg *manifest.AvailablePackage, cfg *Config) (diagnostics []string, err error)
}

// Skeleton is the ephemeral, per-package evaluator (§4.4). It is created on
// demand by the resolver via the `make-skeleton` invocation-boundary
// callback (§6) and must not be shared across goroutines/threads (§3
// "Skeletons" lifecycle).
type Skeleton struct {
	pkg    *manifest.AvailablePackage
	driver Driver

	// cfg accumulates defaults, overrides, and reflects as they are
	// discovered; CollectConfig() finalizes it.
	cfg *Config

	// overrides, in precedence order (user, dependent, reflect), as
	// collected so far.
	userOverrides      map[string]string
	dependentOverrides map[string]string
	reflectOverrides   map[string]string

	// reflectOrigin records which fragment position first set a reflect
	// variable, to detect an override with a different value
	// (evaluate_reflect).
	reflectOrigin map[string]string
}

// New builds a Skeleton for pkg, seeded with the command-line/dependent
// overrides already known at construction time.
func New(pkg *manifest.AvailablePackage, driver Driver, userOverrides, dependentOverrides map[string]string) *Skeleton {
	if userOverrides == nil {
		userOverrides = map[string]string{}
	}
	if dependentOverrides == nil {
		dependentOverrides = map[string]string{}
	}
	return &Skeleton{
		pkg:                pkg,
		driver:             driver,
		cfg:                NewConfig(),
		userOverrides:      userOverrides,
		dependentOverrides: dependentOverrides,
		reflectOverrides:   map[string]string{},
		reflectOrigin:      map[string]string{},
	}
}

// reload drops and rebuilds the internal build-system context, per the
// idempotence invariant in §4.4: "every skeleton operation is idempotent
// over the same inputs; reloads drop and rebuild the internal build-system
// context."
func (s *Skeleton) reload() (*Config, []string, error) {
	cfg := NewConfig()
	for name, val := range s.userOverrides {
		cfg.Set(name, val, OriginOverride)
	}
	for name, val := range s.dependentOverrides {
		cfg.Set(name, val, OriginOverride)
	}
	for name, val := range s.reflectOverrides {
		cfg.Set(name, val, OriginOverride)
	}
	diags, err := s.driver.Load(s.pkg, cfg)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "skeleton: loading %s/%s", s.pkg.Name, s.pkg.Version)
	}
	return cfg, diags, nil
}

// ReloadDefaults populates cfg with every config.<project>.* variable
// currently defined by defaults, tagging each with its origin.
func (s *Skeleton) ReloadDefaults(cfg *Config) error {
	loaded, _, err := s.reload()
	if err != nil {
		return err
	}
	for _, name := range loaded.Names() {
		v, _ := loaded.Get(name)
		origin := v.Origin
		if origin == "" {
			origin = OriginDefault
		}
		cfg.Set(name, v.Raw, origin)
	}
	s.cfg = loaded
	return nil
}

// VerifySensible attempts a root load with cfg and returns (ok,
// diagnostics) without aborting the caller's flow.
func (s *Skeleton) VerifySensible(cfg *Config) (bool, []string) {
	diags, err := s.driver.Load(s.pkg, cfg.Clone())
	if err != nil {
		return false, []string{errors.Wrapf(err, "skeleton: loading %s/%s", s.pkg.Name, s.pkg.Version).Error()}
	}
	return len(diags) == 0, diags
}

// EvaluateEnable evaluates a dependency alternative's enable expression.
func (s *Skeleton) EvaluateEnable(expr string, pos Position) (bool, error) {
	if expr == "" {
		return true, nil
	}
	return EvalBool(expr, s.cfg, pos)
}

// EvaluateReflect applies fragment's assignments to the skeleton's own
// accumulated reflect set, and fails with a diagnostic if an override
// would assign a different value than a previously recorded reflect for
// the same name (§4.4).
func (s *Skeleton) EvaluateReflect(fragment string, pos Position) error {
	assigns, err := ParseAssignments(fragment, s.cfg, pos)
	if err != nil {
		return err
	}
	for _, a := range assigns {
		if prevSrc, ok := s.reflectOrigin[a.Name]; ok {
			if prev := s.reflectOverrides[a.Name]; prev != a.Value {
				return errors.Errorf("%s: reflect override of %s (previously set at %s to %q) with conflicting value %q",
					pos, a.Name, prevSrc, prev, a.Value)
			}
			continue
		}
		s.reflectOverrides[a.Name] = a.Value
		s.reflectOrigin[a.Name] = pos.String()
		s.cfg.Set(a.Name, a.Value, OriginBuildfile)
	}
	return nil
}

// EvaluatePreferAccept applies prefer's assignments to depsCfg (a tentative
// clone, committed only on acceptance), then evaluates the accept
// expression against the result. If accepted, the changes are committed
// back into depsCfg, each changed variable tagged with dependentName as
// its origin (§4.4, §4.6.2).
func (s *Skeleton) EvaluatePreferAccept(depsCfg *Config, prefer, accept string, pos Position, hasAlt bool, dependentName string) (bool, error) {
	trial := depsCfg.Clone()
	assigns, err := ParseAssignments(prefer, trial, pos)
	if err != nil {
		return false, err
	}
	for _, a := range assigns {
		trial.Set(a.Name, a.Value, OriginBuildfile)
	}
	ok, err := EvalBool(accept, trial, pos)
	if err != nil {
		return false, err
	}
	if !ok {
		if hasAlt {
			return false, nil
		}
		return false, errors.Errorf("%s: accept clause rejected configuration with no alternative available", pos)
	}
	for _, a := range assigns {
		depsCfg.SetByDependent(a.Name, a.Value, dependentName, SourceDependent)
	}
	return true, nil
}

// EvaluateRequire is the restricted require form: it may only set boolean
// dependency-configuration variables to true, and fails if any previously
// overridden value of one of those variables is falsy (§4.4).
func (s *Skeleton) EvaluateRequire(depsCfg *Config, require string, pos Position, hasAlt bool, dependentName string) (bool, error) {
	for _, name := range splitNames(require) {
		if v, ok := depsCfg.Get(name); ok && !isTruthy(v.Raw) {
			if hasAlt {
				return false, nil
			}
			return false, errors.Errorf("%s: require clause needs %s=true but it is already %q with no alternative available", pos, name, v.Raw)
		}
	}
	for _, name := range splitNames(require) {
		depsCfg.SetByDependent(name, "true", dependentName, SourceDependent)
	}
	return true, nil
}

func splitNames(require string) []string {
	var out []string
	for _, t := range tokenize(require) {
		if t.kind == "ident" {
			out = append(out, t.text)
		}
	}
	return out
}

func isTruthy(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// CollectConfig finalizes and returns the command-line override list
// (user, dependent, reflect merged in that precedence order) and the names
// of the merged variables, in no particular order, to record on the
// selected package; their sources are not returned.
func (s *Skeleton) CollectConfig() (overrides map[string]string, vars []manifest.Name) {
	merged := map[string]string{}
	for n, v := range s.userOverrides {
		merged[n] = v
	}
	for n, v := range s.dependentOverrides {
		merged[n] = v
	}
	for n, v := range s.reflectOverrides {
		merged[n] = v
	}
	names := make([]manifest.Name, 0, len(merged))
	for n := range merged {
		names = append(names, manifest.Name(n))
	}
	return merged, names
}
