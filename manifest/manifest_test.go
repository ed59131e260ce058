package manifest

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *AvailablePackage {
	t.Helper()
	pkg, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v\n---\n%s", err, src)
	}
	return pkg
}

func TestParseSimpleChainManifest(t *testing.T) {
	src := `
version: 1
name: hello
version-value: 1.0.0
type: exe
depends: libhello >=1.0.0
`
	pkg := mustParse(t, src)
	if pkg.Name != "hello" {
		t.Fatalf("expected name hello, got %s", pkg.Name)
	}
	if len(pkg.Dependencies) != 1 || len(pkg.Dependencies[0].Alternatives) != 1 {
		t.Fatalf("expected one group with one alternative, got %+v", pkg.Dependencies)
	}
	alt := pkg.Dependencies[0].Alternatives[0]
	if len(alt.Deps) != 1 || alt.Deps[0].Name != "libhello" {
		t.Fatalf("expected dependency on libhello, got %+v", alt.Deps)
	}
}

func TestParseVersionSemverHeaderConvertsToNativeVersion(t *testing.T) {
	src := `
version: 1
name: hello
version-semver: 1.2.3-rc1
type: exe
`
	pkg := mustParse(t, src)
	if got, want := pkg.Version.Format(), "1.2.3-rc1"; got != want {
		t.Fatalf("expected converted version %q, got %q", want, got)
	}
}

func TestParseAlternativeWithEnableAndReflect(t *testing.T) {
	src := `version: 1
name: foo
version-value: 1.0.0
depends: libfoo-bar == 1.0.0 ? (!defined(config.foo.api)) config.foo.api=bar | libfoo-baz == 1.0.0 ? (!defined(config.foo.api)) config.foo.api=baz
`
	pkg := mustParse(t, src)
	group := pkg.Dependencies[0]
	if len(group.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives, got %d", len(group.Alternatives))
	}
	a0 := group.Alternatives[0]
	if a0.Enable != "!defined(config.foo.api)" {
		t.Errorf("unexpected enable expr: %q", a0.Enable)
	}
	if a0.Reflect != "config.foo.api=bar" {
		t.Errorf("unexpected reflect clause: %q", a0.Reflect)
	}
	if a0.Deps[0].Name != "libfoo-bar" {
		t.Errorf("unexpected dep name: %q", a0.Deps[0].Name)
	}
}

func TestParsePreferAcceptClause(t *testing.T) {
	src := `version: 1
name: x
version-value: 1.0.0
depends: libshared ? () prefer: config.libshared.buf=8 accept: config.libshared.buf>=8
`
	pkg := mustParse(t, src)
	alt := pkg.Dependencies[0].Alternatives[0]
	if !alt.HasConfigClause() {
		t.Fatalf("expected prefer/accept alternative to report a config clause")
	}
	if alt.Prefer != "config.libshared.buf=8" {
		t.Errorf("unexpected prefer clause: %q", alt.Prefer)
	}
	if alt.Accept != "config.libshared.buf>=8" {
		t.Errorf("unexpected accept clause: %q", alt.Accept)
	}
}

func TestParseBuildDependsIsBuildTime(t *testing.T) {
	src := `version: 1
name: x
version-value: 1.0.0
build-depends: build2 >=0.12.0
`
	pkg := mustParse(t, src)
	if !pkg.Dependencies[0].BuildTime {
		t.Fatalf("expected build-depends to be flagged build-time")
	}
}

func TestMissingVersionHeaderIsFatal(t *testing.T) {
	src := "name: x\n"
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatalf("expected error for missing version header")
	}
}

func TestUnknownFieldsAreIgnored(t *testing.T) {
	src := `version: 1
name: x
version-value: 1.0.0
x-custom-field: whatever
`
	if _, err := Parse(strings.NewReader(src)); err != nil {
		t.Fatalf("expected unknown field to be ignored, got error: %v", err)
	}
}
