// Package workspace implements the workspace graph and candidate-lookup
// order described in §4.5: given a dependency (name, build-time flag, type
// hint), it enumerates the linked configurations that may satisfy it, and
// answers reverse "who depends on X" queries with per-run caching.
package workspace

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bpkgtools/bpkg/manifest"
	"github.com/bpkgtools/bpkg/store"
)

// Type is a workspace's build-system type tag, mirroring
// store.ConfigurationType so callers outside the store package don't need
// to import it directly for routine graph walks.
type Type = store.ConfigurationType

const (
	Target Type = store.ConfigurationTarget
	Host   Type = store.ConfigurationHost
	Build2 Type = store.ConfigurationBuild2
)

// AddPrivateConfiguration is the executor callback the resolver invokes
// when a build-time dependency needs a host/build2 child workspace that
// does not yet exist (§4.5 item 2). It must create the child on disk,
// register it in parentID's store, and return the new configuration.
type AddPrivateConfiguration func(ctx context.Context, parentID int64, typ Type) (*store.Configuration, error)

// Graph is one resolver run's view of the linked-workspace cluster,
// rooted at a single store. It memoizes link lookups and dependent
// queries for the lifetime of the run (§4.5 "cached per (workspace,
// dependency-name) within one resolver run").
type Graph struct {
	st        *store.Store
	addChild  AddPrivateConfiguration
	linkCache map[int64]linkSet
	depCache  map[depKey][]*store.SelectedPackage
}

type linkSet struct {
	explicit []*store.Configuration
	implicit []*store.Configuration
}

type depKey struct {
	configurationID int64
	name            manifest.Name
}

// New builds a Graph backed by st. addChild may be nil if the caller never
// expects a build-time dependency lookup to need a fresh private child
// (e.g. a dry-run `pkg-status`-style query).
func New(st *store.Store, addChild AddPrivateConfiguration) *Graph {
	return &Graph{
		st:        st,
		addChild:  addChild,
		linkCache: map[int64]linkSet{},
		depCache:  map[depKey][]*store.SelectedPackage{},
	}
}

func (g *Graph) links(ctx context.Context, configurationID int64) (linkSet, error) {
	if ls, ok := g.linkCache[configurationID]; ok {
		return ls, nil
	}
	cfgs, explicitFlags, err := g.st.LinkedConfigurations(ctx, configurationID)
	if err != nil {
		return linkSet{}, err
	}
	var ls linkSet
	for i, c := range cfgs {
		if explicitFlags[i] {
			ls.explicit = append(ls.explicit, c)
		} else {
			ls.implicit = append(ls.implicit, c)
		}
	}
	g.linkCache[configurationID] = ls
	return ls, nil
}

// Candidates enumerates the configurations to search, in order, for a
// dependency named name with the given build-time flag and optional type
// hint (§4.5). self is the configuration doing the lookup and selfType its
// type.
//
// The returned slice may contain a configuration created on demand (for
// the build-time private-child case); callers that only need to know
// whether a candidate *could* exist (no mutation wanted) should pass a nil
// AddPrivateConfiguration to New and tolerate the resulting error.
func (g *Graph) Candidates(ctx context.Context, self *store.Configuration, selfType Type, buildTime bool, typeHint Type) ([]*store.Configuration, error) {
	if !buildTime {
		return g.sameTypePeers(ctx, self, selfType)
	}

	ls, err := g.links(ctx, self.ID)
	if err != nil {
		return nil, err
	}

	childType := typeHint
	if childType == "" {
		childType = Host
	}

	var explicitChildren []*store.Configuration
	for _, c := range ls.explicit {
		if c.Type == childType {
			explicitChildren = append(explicitChildren, c)
		}
	}
	if len(explicitChildren) > 0 {
		candidates := explicitChildren
		if childType == Build2 {
			peers, err := g.implicitBuild2Peers(ctx, self, selfType)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, peers...)
		}
		return candidates, nil
	}

	if g.addChild == nil {
		return nil, errors.Errorf("workspace: %s has no %s child for a build-time dependency and no private-configuration callback was supplied", self.Path, childType)
	}
	child, err := g.addChild(ctx, self.ID, childType)
	if err != nil {
		return nil, errors.Wrapf(err, "workspace: creating private %s configuration for %s", childType, self.Path)
	}
	delete(g.linkCache, self.ID) // invalidate: the store now has a new link
	return []*store.Configuration{child}, nil
}

// sameTypePeers implements §4.5 item 1: self plus transitively
// implicitly-linked workspaces of the same type.
func (g *Graph) sameTypePeers(ctx context.Context, self *store.Configuration, selfType Type) ([]*store.Configuration, error) {
	seen := map[int64]bool{self.ID: true}
	out := []*store.Configuration{self}
	queue := []int64{self.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ls, err := g.links(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range ls.implicit {
			if c.Type != selfType || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// implicitBuild2Peers implements §4.5 item 3: a build2 workspace may
// additionally reach the explicit build2-typed children of its
// implicitly-linked peers.
func (g *Graph) implicitBuild2Peers(ctx context.Context, self *store.Configuration, selfType Type) ([]*store.Configuration, error) {
	peers, err := g.sameTypePeers(ctx, self, selfType)
	if err != nil {
		return nil, err
	}
	var out []*store.Configuration
	for _, peer := range peers {
		if peer.ID == self.ID {
			continue
		}
		ls, err := g.links(ctx, peer.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range ls.explicit {
			if c.Type == Build2 {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Dependents answers "who depends on (depConfigurationID, depName)"
// across every configuration reachable from root, memoizing per
// (configuration, name) for the lifetime of the Graph (§4.5 "Dependent
// discovery").
func (g *Graph) Dependents(ctx context.Context, root *store.Configuration, rootType Type, depConfigurationID int64, depName manifest.Name) ([]*store.SelectedPackage, error) {
	key := depKey{configurationID: depConfigurationID, name: manifest.Name(depName.Key())}
	if cached, ok := g.depCache[key]; ok {
		return cached, nil
	}

	visited := map[int64]bool{}
	var out []*store.SelectedPackage
	var walk func(cfgID int64, typ Type) error
	walk = func(cfgID int64, typ Type) error {
		if visited[cfgID] {
			return nil
		}
		visited[cfgID] = true

		found, err := g.st.Dependents(ctx, depConfigurationID, depName)
		if err != nil {
			return err
		}
		for _, sp := range found {
			if sp.ConfigurationID == cfgID {
				out = append(out, sp)
			}
		}

		ls, err := g.links(ctx, cfgID)
		if err != nil {
			return err
		}
		for _, c := range ls.explicit {
			if err := walk(c.ID, c.Type); err != nil {
				return err
			}
		}
		for _, c := range ls.implicit {
			if c.Type != typ {
				continue
			}
			if err := walk(c.ID, c.Type); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root.ID, rootType); err != nil {
		return nil, err
	}

	g.depCache[key] = out
	return out, nil
}

// NewUUID mints a fresh workspace identity, used when registering a newly
// created private configuration (§3 "uuid" field).
func NewUUID() string { return uuid.NewString() }

// RefreshDescriptor regenerates self's on-disk bpkg.toml cluster
// descriptor from the store's current link table, so it never drifts from
// the authoritative sqlite state.
func (g *Graph) RefreshDescriptor(ctx context.Context, self *store.Configuration) error {
	ls, err := g.links(ctx, self.ID)
	if err != nil {
		return err
	}
	var d Descriptor
	for _, c := range ls.explicit {
		d.Links = append(d.Links, DescriptorLink{Path: c.Path, Type: string(c.Type), Explicit: true})
	}
	for _, c := range ls.implicit {
		d.Links = append(d.Links, DescriptorLink{Path: c.Path, Type: string(c.Type), Explicit: false})
	}
	return WriteDescriptor(self.Path, d)
}
