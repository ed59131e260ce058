package version

import "testing"

func mustParseVersion(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func TestVersionRoundTrip(t *testing.T) {
	rel := "alpha.1"
	rev := uint16(3)
	cases := []Version{
		{Epoch: 0, Upstream: "1.2.3"},
		{Epoch: 1, Upstream: "1.2.3", Release: &rel},
		{Epoch: 0, Upstream: "1.2.3", Revision: &rev},
		{Epoch: 2, Upstream: "1.0.0", Release: &rel, Revision: &rev, Iteration: 4},
		Wildcard,
	}
	for _, v := range cases {
		s := v.Format()
		got, err := ParseVersion(s)
		if err != nil {
			t.Fatalf("ParseVersion(Format(%v)) = %v, %v", v, got, err)
		}
		if got.Format() != s {
			t.Errorf("round trip mismatch: %v formatted %q, reparsed formatted %q", v, s, got.Format())
		}
	}
}

func TestVersionOrdering(t *testing.T) {
	v1 := mustParseVersion(t, "1.0.0")
	v2 := mustParseVersion(t, "1.0.1")
	v3 := mustParseVersion(t, "2.0.0")
	if Compare(v1, v2, Default) >= 0 {
		t.Errorf("expected %s < %s", v1, v2)
	}
	if Compare(v2, v3, Default) >= 0 {
		t.Errorf("expected %s < %s", v2, v3)
	}
	if Compare(v1, v1, Default) != 0 {
		t.Errorf("expected %s == %s", v1, v1)
	}
}

func TestFinalSortsAfterPrerelease(t *testing.T) {
	final := mustParseVersion(t, "1.0.0")
	pre := mustParseVersion(t, "1.0.0-rc1")
	if Compare(final, pre, Default) <= 0 {
		t.Errorf("final release %s should sort greater than pre-release %s", final, pre)
	}
}

func TestRevisionAbsentEqualsZero(t *testing.T) {
	zero := uint16(0)
	a := Version{Upstream: "1.0.0"}
	b := Version{Upstream: "1.0.0", Revision: &zero}
	if Compare(a, b, Default) != 0 {
		t.Errorf("absent revision should compare equal to explicit zero revision")
	}
	if a.Format() == b.Format() {
		t.Errorf("absent and explicit-zero revision should format differently, got %q for both", a.Format())
	}
}

func TestWildcardMatchesAnyComparison(t *testing.T) {
	v := mustParseVersion(t, "3.1.4")
	if !Equal(Wildcard, v, Default) || !Equal(v, Wildcard, Default) {
		t.Errorf("wildcard should compare equal to %s in both directions", v)
	}
}

func TestSortForUpgradeAndDowngrade(t *testing.T) {
	vs := []Version{
		mustParseVersion(t, "1.0.1"),
		mustParseVersion(t, "1.0.0"),
		mustParseVersion(t, "2.0.0"),
	}
	up := append([]Version(nil), vs...)
	SortForUpgrade(up)
	if up[0].Format() != "2.0.0" {
		t.Errorf("expected highest version first on upgrade sort, got %s", up[0])
	}

	down := append([]Version(nil), vs...)
	SortForDowngrade(down)
	if down[0].Format() != "1.0.0" {
		t.Errorf("expected lowest version first on downgrade sort, got %s", down[0])
	}
}
