package resolver

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/jmank88/nuts"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/skeleton"
)

// maxClusterMembers is the largest member-introduction sequence number the
// introduction keys are sized for; nuts.KeyLen(max) picks the smallest
// fixed byte width that can still represent every value up to max while
// preserving numeric ordering under plain byte comparison.
const maxClusterMembers = 1 << 24

var introductionKeyLen = nuts.KeyLen(maxClusterMembers)

// introductionKey encodes n as a fixed-width, byte-order-preserving key
// (the same encoding nuts provides for bolt bucket keys), so cluster
// members can be ordered by arrival with a plain bytes.Compare rather than
// an integer comparison — handy once negotiation state is serialized for
// diagnostics, where the encoded form must sort the same way the integers
// do.
func introductionKey(n int) nuts.Key {
	k := make(nuts.Key, introductionKeyLen)
	k.Put(uint64(n))
	return k
}

// clusterMember is one dependent's contribution to a configuration
// cluster: the alternative it picked (carrying the prefer/accept or
// require clause) plus enough identity to re-seed its dependencies once
// the cluster settles.
type clusterMember struct {
	dependent       Key
	groupIndex      int
	altIndex        int
	alt             manifest.Alternative
	alternatives    []manifest.Alternative // sibling alternatives, for "has another enabled alternative"
	configurationID int64
	introducedAt    int       // monotonic order of arrival
	introducedKey   nuts.Key  // introducedAt, byte-order-preserving encoded
}

// cluster is one configuration cluster (§4.6.2): the set of dependents
// negotiating a shared dependency-configuration snapshot.
type cluster struct {
	members []clusterMember
	depsCfg *skeleton.Config

	state string // "not yet", "in progress", "done"
	depth int

	// shadow records every distinct negotiated-state fingerprint this
	// cluster has passed through, to detect a merge-configuration cycle
	// between two dependents re-negotiating each other's changes.
	shadow map[string]bool
}

type clusterSet struct {
	clusters []*cluster
	byMember map[Key]*cluster
	nextSeq  int
}

func newClusterSet() *clusterSet {
	return &clusterSet{byMember: map[Key]*cluster{}}
}

// register adds dependentKey's selected alternative (at groupIndex/altIndex)
// to the first existing cluster that touches one of its dependencies in
// configurationID, or creates a new cluster if none does (§4.6.2 para 1).
// Two existing clusters are never merged into one: when the alternative
// touches several clusters, only the first one receives the member.
func (cs *clusterSet) register(dependentKey Key, groupIndex, altIndex int, alt manifest.Alternative, configurationID int64, siblings []manifest.Alternative) {
	member := clusterMember{
		dependent:       dependentKey,
		groupIndex:      groupIndex,
		altIndex:        altIndex,
		alt:             alt,
		alternatives:    siblings,
		configurationID: configurationID,
		introducedAt:    cs.nextSeq,
		introducedKey:   introductionKey(cs.nextSeq),
	}
	cs.nextSeq++

	// A dependent already participating in a cluster simply updates its
	// contribution there instead of starting a fresh one.
	if existing, ok := cs.byMember[dependentKey]; ok {
		for i, m := range existing.members {
			if m.dependent == dependentKey {
				existing.members[i] = member
				return
			}
		}
		existing.members = append(existing.members, member)
		return
	}

	// Does this dependency already have a cluster touching the same
	// target configuration and any of the same dependency names? Merge
	// into it if so.
	names := depNames(alt)
	for _, c := range cs.clusters {
		if clusterTouches(c, configurationID, names) {
			c.members = append(c.members, member)
			cs.byMember[dependentKey] = c
			return
		}
	}

	c := &cluster{
		members: []clusterMember{member},
		depsCfg: skeleton.NewConfig(),
		state:   "not yet",
		shadow:  map[string]bool{},
	}
	cs.clusters = append(cs.clusters, c)
	cs.byMember[dependentKey] = c
}

func depNames(alt manifest.Alternative) map[string]bool {
	out := map[string]bool{}
	for _, d := range alt.Deps {
		out[d.Name.Key()] = true
	}
	return out
}

func clusterTouches(c *cluster, configurationID int64, names map[string]bool) bool {
	for _, m := range c.members {
		if m.configurationID != configurationID {
			continue
		}
		for _, d := range m.alt.Deps {
			if names[d.Name.Key()] {
				return true
			}
		}
	}
	return false
}

// negotiateRound runs one negotiation pass over every not-yet-settled
// cluster (§4.6.2 steps 1-5), returning whether any state changed.
func (cs *clusterSet) negotiateRound(ctx context.Context, r *Resolver) (bool, error) {
	changed := false
	for _, c := range cs.clusters {
		if c.state == "done" {
			continue
		}
		c.state = "in progress"

		members := append([]clusterMember(nil), c.members...)
		sort.Slice(members, func(i, j int) bool {
			return bytes.Compare(members[i].introducedKey, members[j].introducedKey) < 0
		})

		before := c.depsCfg.Checksum()

		for _, m := range members {
			bp := r.packages[m.dependent]
			if bp == nil || bp.Skeleton == nil {
				continue
			}
			hasAlt := len(m.alternatives) > 1
			var ok bool
			var err error
			if m.alt.Require != "" {
				ok, err = bp.Skeleton.EvaluateRequire(c.depsCfg, m.alt.Require, skeleton.Position{}, hasAlt, string(m.dependent.Name))
			} else {
				ok, err = bp.Skeleton.EvaluatePreferAccept(c.depsCfg, m.alt.Prefer, m.alt.Accept, skeleton.Position{}, hasAlt, string(m.dependent.Name))
			}
			if err != nil {
				return false, err
			}
			if !ok {
				r.unacceptableAlternatives[unacceptableKey{
					key: m.dependent, version: availVersion(r, m.dependent),
					groupIndex: m.groupIndex, altIndex: m.altIndex,
				}] = true
				return false, &restartSignal{reason: fmt.Sprintf("cluster rejected alternative for %s, excluding it and restarting", m.dependent.Name)}
			}
		}

		after := c.depsCfg.Checksum()
		if after != before {
			changed = true
			if c.shadow[after] {
				return false, &restartSignal{reason: "merge-configuration cycle detected in configuration cluster"}
			}
			c.shadow[after] = true
			c.depth++
			continue // re-run this cluster next round before declaring it done
		}

		// A full pass with no change: the cluster is negotiated.
		c.state = "done"
		changed = true
		for _, m := range members {
			for _, dep := range m.alt.Deps {
				dependentName := m.dependent.Name
				if err := r.seedDependency(ctx, dependentName, m.configurationID, dep); err != nil {
					return false, err
				}
			}
			delete(r.postponedDependencies, m.dependent)
			if bp := r.packages[m.dependent]; bp != nil {
				bp.RecursivelyCollected = true
			}
		}
	}
	return changed, nil
}

func availVersion(r *Resolver, k Key) string {
	if bp := r.packages[k]; bp != nil && bp.Available != nil {
		return bp.Available.Version.Format()
	}
	return ""
}
