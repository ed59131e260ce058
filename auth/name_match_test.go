package auth

import "testing"

func TestMatchNameExact(t *testing.T) {
	if err := matchName("example.org", "example.org"); err != nil {
		t.Errorf("exact match should succeed: %v", err)
	}
}

func TestMatchNameDoubleStarMatchesAnySubdomainAndSelf(t *testing.T) {
	if err := matchName("**example.org", "example.org"); err != nil {
		t.Errorf("**x should match x itself: %v", err)
	}
	if err := matchName("**example.org", "pkg.build.example.org"); err != nil {
		t.Errorf("**x should match any multi-level subdomain: %v", err)
	}
}

func TestMatchNameDoubleStarDotExcludesSelf(t *testing.T) {
	if err := matchName("**.example.org", "example.org"); err == nil {
		t.Errorf("**.x should not match x itself")
	}
	if err := matchName("**.example.org", "pkg.example.org"); err != nil {
		t.Errorf("**.x should match a subdomain: %v", err)
	}
}

func TestMatchNameSingleStarMatchesOneLevel(t *testing.T) {
	if err := matchName("*example.org", "pkg.example.org"); err != nil {
		t.Errorf("*x should match a single subdomain level: %v", err)
	}
	if err := matchName("*example.org", "a.b.example.org"); err == nil {
		t.Errorf("*x should not match two subdomain levels")
	}
}

func TestMatchNameSingleStarDotExcludesSelf(t *testing.T) {
	if err := matchName("*.example.org", "example.org"); err == nil {
		t.Errorf("*.x should not match x itself")
	}
	if err := matchName("*.example.org", "pkg.example.org"); err != nil {
		t.Errorf("*.x should match one subdomain level: %v", err)
	}
}

func TestMatchNameTrailingMustBePrefixAtBoundary(t *testing.T) {
	if err := matchName("example.org/team", "example.org/team/sub"); err != nil {
		t.Errorf("trailing prefix at / boundary should match: %v", err)
	}
	if err := matchName("example.org/tea", "example.org/team/sub"); err == nil {
		t.Errorf("trailing prefix not at / boundary should not match")
	}
}

func TestMatchNameEmptyCertTrailingMatchesAnyRepoTrailing(t *testing.T) {
	if err := matchName("example.org", "example.org/any/path"); err != nil {
		t.Errorf("empty certificate trailing should match any repository trailing: %v", err)
	}
}
