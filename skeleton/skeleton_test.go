package skeleton

import (
	"testing"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/version"
)

// stubDriver plays back a fixed set of config.<project>.* defaults as if a
// build-system buildfile had declared them, ignoring the package contents.
type stubDriver struct {
	defaults map[string]string
}

func (d *stubDriver) Load(pkg *manifest.AvailablePackage, cfg *Config) ([]string, error) {
	for name, val := range d.defaults {
		cfg.Set(name, val, OriginDefault)
	}
	return nil, nil
}

func testPackage() *manifest.AvailablePackage {
	v, err := version.ParseVersion("1.0.0")
	if err != nil {
		panic(err)
	}
	return &manifest.AvailablePackage{Name: "libshared", Version: v}
}

func TestReloadDefaultsIsIdempotent(t *testing.T) {
	driver := &stubDriver{defaults: map[string]string{"config.libshared.buf": "1024"}}
	sk := New(testPackage(), driver, nil, nil)

	cfg1 := NewConfig()
	if err := sk.ReloadDefaults(cfg1); err != nil {
		t.Fatalf("ReloadDefaults: %v", err)
	}
	cfg2 := NewConfig()
	if err := sk.ReloadDefaults(cfg2); err != nil {
		t.Fatalf("ReloadDefaults (second): %v", err)
	}
	if cfg1.Checksum() != cfg2.Checksum() {
		t.Errorf("expected idempotent reload, got checksums %s and %s", cfg1.Checksum(), cfg2.Checksum())
	}
	v, ok := cfg1.Get("config.libshared.buf")
	if !ok || v.Raw != "1024" {
		t.Errorf("expected config.libshared.buf=1024, got %+v ok=%v", v, ok)
	}
}

func TestEvaluateEnableWithDefinedAndComparison(t *testing.T) {
	driver := &stubDriver{defaults: map[string]string{"config.libshared.backend": "tcp"}}
	sk := New(testPackage(), driver, nil, nil)
	cfg := NewConfig()
	if err := sk.ReloadDefaults(cfg); err != nil {
		t.Fatalf("ReloadDefaults: %v", err)
	}

	ok, err := sk.EvaluateEnable(`defined(config.libshared.backend) && config.libshared.backend == "tcp"`, Position{})
	if err != nil {
		t.Fatalf("EvaluateEnable: %v", err)
	}
	if !ok {
		t.Error("expected enable expression to evaluate true")
	}

	ok, err = sk.EvaluateEnable(`config.libshared.backend == "udp"`, Position{})
	if err != nil {
		t.Fatalf("EvaluateEnable: %v", err)
	}
	if ok {
		t.Error("expected enable expression to evaluate false for non-matching backend")
	}
}

func TestEvaluateEnableEmptyIsAlwaysTrue(t *testing.T) {
	sk := New(testPackage(), &stubDriver{}, nil, nil)
	ok, err := sk.EvaluateEnable("", Position{})
	if err != nil || !ok {
		t.Errorf("expected empty enable expression to be true, got %v, %v", ok, err)
	}
}

func TestEvaluateReflectRecordsAndDetectsConflict(t *testing.T) {
	sk := New(testPackage(), &stubDriver{}, nil, nil)

	if err := sk.EvaluateReflect("config.libshared.buf = 2048", Position{File: "manifest", Line: 1}); err != nil {
		t.Fatalf("EvaluateReflect: %v", err)
	}
	v, ok := sk.cfg.Get("config.libshared.buf")
	if !ok || v.Raw != "2048" {
		t.Errorf("expected reflect to set config.libshared.buf=2048, got %+v", v)
	}

	// Same value again from a different position: not a conflict.
	if err := sk.EvaluateReflect("config.libshared.buf = 2048", Position{File: "manifest", Line: 2}); err != nil {
		t.Errorf("expected repeated identical reflect to succeed, got %v", err)
	}

	// Conflicting value: must fail.
	if err := sk.EvaluateReflect("config.libshared.buf = 4096", Position{File: "manifest", Line: 3}); err == nil {
		t.Error("expected conflicting reflect value to fail")
	}
}

func TestEvaluatePreferAcceptCommitsOnAcceptance(t *testing.T) {
	sk := New(testPackage(), &stubDriver{}, nil, nil)
	depsCfg := NewConfig()
	depsCfg.Set("config.libshared.buf", "1024", OriginDefault)

	ok, err := sk.EvaluatePreferAccept(depsCfg,
		"config.libshared.buf = max(previous, 2048)",
		"config.libshared.buf >= 2048",
		Position{}, false, "libclient")
	if err != nil {
		t.Fatalf("EvaluatePreferAccept: %v", err)
	}
	if !ok {
		t.Fatal("expected prefer/accept to be accepted")
	}
	v, _ := depsCfg.Get("config.libshared.buf")
	if v.Raw != "2048" {
		t.Errorf("expected config.libshared.buf=2048 after max(previous, 2048), got %s", v.Raw)
	}
	if v.ImposedBy != "libclient" {
		t.Errorf("expected value imposed by libclient, got %q", v.ImposedBy)
	}
}

func TestEvaluatePreferAcceptRejectionWithAlternativeDoesNotCommit(t *testing.T) {
	sk := New(testPackage(), &stubDriver{}, nil, nil)
	depsCfg := NewConfig()
	depsCfg.Set("config.libshared.buf", "512", OriginDefault)

	ok, err := sk.EvaluatePreferAccept(depsCfg,
		"config.libshared.buf = 1024",
		"config.libshared.buf >= 2048",
		Position{}, true, "libclient")
	if err != nil {
		t.Fatalf("EvaluatePreferAccept: %v", err)
	}
	if ok {
		t.Fatal("expected accept clause to reject this configuration")
	}
	v, _ := depsCfg.Get("config.libshared.buf")
	if v.Raw != "512" {
		t.Errorf("expected depsCfg to remain uncommitted at 512, got %s", v.Raw)
	}
}

func TestEvaluatePreferAcceptRejectionWithoutAlternativeFails(t *testing.T) {
	sk := New(testPackage(), &stubDriver{}, nil, nil)
	depsCfg := NewConfig()
	depsCfg.Set("config.libshared.buf", "512", OriginDefault)

	_, err := sk.EvaluatePreferAccept(depsCfg,
		"config.libshared.buf = 1024",
		"config.libshared.buf >= 2048",
		Position{}, false, "libclient")
	if err == nil {
		t.Error("expected error when accept rejects with no alternative available")
	}
}

func TestEvaluateRequireSetsBooleanAndRejectsConflict(t *testing.T) {
	sk := New(testPackage(), &stubDriver{}, nil, nil)
	depsCfg := NewConfig()

	ok, err := sk.EvaluateRequire(depsCfg, "config.libshared.threading", Position{}, false, "libclient")
	if err != nil || !ok {
		t.Fatalf("EvaluateRequire: ok=%v err=%v", ok, err)
	}
	v, _ := depsCfg.Get("config.libshared.threading")
	if v.Raw != "true" {
		t.Errorf("expected config.libshared.threading=true, got %s", v.Raw)
	}

	depsCfg2 := NewConfig()
	depsCfg2.Set("config.libshared.threading", "false", OriginOverride)
	ok, err = sk.EvaluateRequire(depsCfg2, "config.libshared.threading", Position{}, true, "libclient")
	if err != nil {
		t.Fatalf("EvaluateRequire: %v", err)
	}
	if ok {
		t.Error("expected require to fail against an explicit false override")
	}
}

func TestCollectConfigMergesInPrecedenceOrder(t *testing.T) {
	sk := New(testPackage(), &stubDriver{},
		map[string]string{"config.libshared.buf": "1024"},
		map[string]string{"config.libshared.threading": "true"})
	sk.reflectOverrides["config.libshared.logfmt"] = "json"

	overrides, names := sk.CollectConfig()
	if overrides["config.libshared.buf"] != "1024" {
		t.Errorf("expected user override to survive merge, got %+v", overrides)
	}
	if overrides["config.libshared.threading"] != "true" {
		t.Errorf("expected dependent override to survive merge, got %+v", overrides)
	}
	if overrides["config.libshared.logfmt"] != "json" {
		t.Errorf("expected reflect override to survive merge, got %+v", overrides)
	}
	if len(names) != 3 {
		t.Errorf("expected 3 config_variable names, got %d: %v", len(names), names)
	}
}
