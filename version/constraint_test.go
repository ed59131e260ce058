package version

import "testing"

func TestConstraintRoundTrip(t *testing.T) {
	cases := []string{"*", "==1.0.0", ">=1.0.0,<2.0.0", ">1.0.0", "<=2.0.0"}
	for _, s := range cases {
		c, err := Parse(s, Default)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		s2 := c.String()
		c2, err := Parse(s2, Default)
		if err != nil {
			t.Fatalf("Parse(%q) [reparse of %q]: %v", s2, s, err)
		}
		if c2.String() != c.String() {
			t.Errorf("round trip mismatch for %q: got %q then %q", s, c.String(), c2.String())
		}
	}
}

func TestIntersectWithAnyIsIdentity(t *testing.T) {
	c, _ := Parse(">=1.0.0,<2.0.0", Default)
	if c.Intersect(Any).String() != c.String() {
		t.Errorf("intersect(c, *) should equal c, got %s", c.Intersect(Any))
	}
	if Any.Intersect(c).String() != c.String() {
		t.Errorf("intersect(*, c) should equal c, got %s", Any.Intersect(c))
	}
}

func TestIntersectCommutativeAndAssociative(t *testing.T) {
	a, _ := Parse(">=1.0.0,<3.0.0", Default)
	b, _ := Parse(">=2.0.0,<4.0.0", Default)
	c, _ := Parse(">=2.5.0,<5.0.0", Default)

	ab := a.Intersect(b)
	ba := b.Intersect(a)
	if ab.String() != ba.String() {
		t.Errorf("intersect not commutative: %s vs %s", ab, ba)
	}

	abc1 := a.Intersect(b).Intersect(c)
	abc2 := a.Intersect(b.Intersect(c))
	if abc1.String() != abc2.String() {
		t.Errorf("intersect not associative: %s vs %s", abc1, abc2)
	}
}

func TestEmptyIntersectionIsNone(t *testing.T) {
	a, _ := Parse(">=2.0.0", Default)
	b, _ := Parse("<1.0.0", Default)
	if a.Intersect(b) != None {
		t.Errorf("expected unsatisfiable intersection to collapse to None, got %s", a.Intersect(b))
	}
}

func TestSingletonMatchesOnlyItself(t *testing.T) {
	v1 := mustParseVersion(t, "1.0.0")
	v2 := mustParseVersion(t, "1.0.1")
	c := Singleton(v1, Default)
	if !c.Matches(v1) {
		t.Errorf("singleton %s should match %s", c, v1)
	}
	if c.Matches(v2) {
		t.Errorf("singleton %s should not match %s", c, v2)
	}
}

func TestWildcardVersionMatchesEveryConstraint(t *testing.T) {
	c, _ := Parse(">=5.0.0,<6.0.0", Default)
	if !c.Matches(Wildcard) {
		t.Errorf("wildcard version should satisfy every constraint")
	}
}
