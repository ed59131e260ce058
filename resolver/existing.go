package resolver

import (
	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/skeleton"
	"github.com/bpkgtools/bpkg/store"
)

// ExistingDecision is the outcome of pre-reevaluating an already-configured
// dependent whose dependency X is being up/downgraded (§4.6.3).
type ExistingDecision string

const (
	// DecisionReconfigureOnly means D is otherwise unaffected: schedule a
	// plain reconfigure, no re-collection needed.
	DecisionReconfigureOnly ExistingDecision = "reconfigure_only"
	// DecisionReevaluate means D must be re-collected starting from the
	// earliest alternative group carrying a configuration clause.
	DecisionReevaluate ExistingDecision = "reevaluate"
	// DecisionRecollect means D's alternative selection itself changed
	// under re-evaluation: D's dependencies must be recollected in full.
	DecisionRecollect ExistingDecision = "recollect"
)

// PreReevaluateExisting implements §4.6.3's read-only pre-reevaluate walk:
// given D's declared alternative groups (in the same order as its stored
// AlternativeSelection) and the name of the dependency being up/downgraded,
// decide whether D needs reconfiguration, full re-evaluation, or can be
// left alone beyond a plain reconfigure.
//
// touchedConfigVars is the set of config.<project>.* variable names the
// upgrade's new configuration cluster state changed; it is used to decide
// whether D's own enable/reflect clauses are affected even when D has no
// configuration clause of its own for the changed dependency.
func PreReevaluateExisting(sk *skeleton.Skeleton, existing *store.SelectedPackage, avail *manifest.AvailablePackage, changedDependencyName manifest.Name, touchedConfigVars map[string]bool) (ExistingDecision, int, error) {
	for gi, group := range avail.Dependencies {
		touchesChanged := false
		for _, alt := range group.Alternatives {
			for _, d := range alt.Deps {
				if d.Name.Equal(changedDependencyName) {
					touchesChanged = true
				}
			}
		}

		selIdx := 0
		if gi < len(existing.AlternativeSelection) {
			selIdx = existing.AlternativeSelection[gi]
		}
		var selectedAlt manifest.Alternative
		if selIdx > 0 && selIdx-1 < len(group.Alternatives) {
			selectedAlt = group.Alternatives[selIdx-1]
		}

		if touchesChanged {
			if selectedAlt.HasConfigClause() {
				return DecisionReevaluate, gi, nil
			}
			return decisionFromClauseReferences(sk, selectedAlt, touchedConfigVars), gi, nil
		}

		if selectedAlt.HasConfigClause() {
			// An earlier group already carries a configuration clause: its
			// enable/reflect may depend on configuration state that the
			// upgrade being evaluated can itself perturb downstream, so D
			// must be re-evaluated starting from this earlier position
			// rather than only reconfigured at the changed group.
			return DecisionReevaluate, gi, nil
		}
	}
	return DecisionReconfigureOnly, -1, nil
}

// decisionFromClauseReferences checks whether D's enable/reflect clauses
// for its selected alternative read any of the touched configuration
// variables; if so a full re-evaluation is still warranted even without a
// configuration clause of D's own.
func decisionFromClauseReferences(sk *skeleton.Skeleton, alt manifest.Alternative, touchedConfigVars map[string]bool) ExistingDecision {
	for _, tok := range tokenizeForReferences(alt.Enable) {
		if touchedConfigVars[tok] {
			return DecisionReevaluate
		}
	}
	for _, tok := range tokenizeForReferences(alt.Reflect) {
		if touchedConfigVars[tok] {
			return DecisionReevaluate
		}
	}
	return DecisionReconfigureOnly
}

func tokenizeForReferences(s string) []string {
	var out []string
	cur := ""
	flush := func() {
		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
	}
	for _, r := range s {
		switch {
		case r == '.' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			cur += string(r)
		default:
			flush()
		}
	}
	flush()
	return out
}
