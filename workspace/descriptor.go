package workspace

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Descriptor is the human-editable cluster manifest written alongside the
// sqlite store at <root>/bpkg/bpkg.toml. It is not authoritative — the
// store is — but gives an operator a quick, greppable summary of which
// workspaces are linked into this one's cluster, the way the teacher kept
// a TOML-rendered dependency tree alongside its binary lock state.
type Descriptor struct {
	Links []DescriptorLink `toml:"link"`
}

// DescriptorLink is one linked-configuration entry in a Descriptor.
type DescriptorLink struct {
	Path     string `toml:"path"`
	Type     string `toml:"type"`
	Explicit bool   `toml:"explicit"`
}

// WriteDescriptor renders d as TOML to <root>/bpkg/bpkg.toml.
func WriteDescriptor(root string, d Descriptor) error {
	out, err := toml.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "workspace: rendering cluster descriptor")
	}
	path := filepath.Join(root, "bpkg", "bpkg.toml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "workspace: writing %s", path)
	}
	return nil
}

// ReadDescriptor loads the cluster descriptor at <root>/bpkg/bpkg.toml, or
// a zero-value Descriptor if the file does not yet exist (a freshly
// created workspace has no links).
func ReadDescriptor(root string) (Descriptor, error) {
	path := filepath.Join(root, "bpkg", "bpkg.toml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Descriptor{}, nil
	}
	if err != nil {
		return Descriptor{}, errors.Wrapf(err, "workspace: reading %s", path)
	}
	var d Descriptor
	if err := toml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, errors.Wrapf(err, "workspace: parsing %s", path)
	}
	return d, nil
}
