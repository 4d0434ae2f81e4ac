// Package bootspec parses the RFC-0125 boot specification documents that
// describe one bootable system generation, including the systemd-boot
// vendor extension and nested specialisations.
package bootspec

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDescriptor is returned when a boot specification document
// cannot be decoded. A corrupt descriptor is always fatal for the whole
// run: the affected generation may be the one currently booted, so it
// must never be silently skipped.
var ErrMalformedDescriptor = errors.New("malformed boot specification")

// DefaultSortKey is used when a generation does not carry the
// systemd-boot extension or leaves its sort key unset.
const DefaultSortKey = "nixos"

// BootSpec is an immutable description of one bootable system. It is
// recomputed from the generation's closure on every run and never
// mutated in place.
type BootSpec struct {
	Init          string
	Initrd        string
	Kernel        string
	KernelParams  []string
	Label         string
	System        string
	Toplevel      string
	SortKey       string
	Devicetree    string // empty means none
	InitrdSecrets string // empty means no secrets hook

	// Specialisations maps a specialisation name to its own full boot
	// specification. The schema is recursive, so arbitrary nesting is
	// tolerated even though in practice only one level occurs.
	Specialisations map[string]*BootSpec
}

// The wire format: a document with one required and two optional
// top-level keys.
type document struct {
	V1 *struct {
		Init          string   `json:"init"`
		Initrd        string   `json:"initrd"`
		InitrdSecrets string   `json:"initrdSecrets"`
		Kernel        string   `json:"kernel"`
		KernelParams  []string `json:"kernelParams"`
		Label         string   `json:"label"`
		System        string   `json:"system"`
		Toplevel      string   `json:"toplevel"`
	} `json:"org.nixos.bootspec.v1"`
	Specialisations map[string]document `json:"org.nixos.specialisation.v1"`
	SystemdBoot     *struct {
		SortKey    string `json:"sortKey"`
		Devicetree string `json:"devicetree"`
	} `json:"org.nixos.systemd-boot"`
}

// Parse decodes a boot specification document. Decode failures and
// documents without the org.nixos.bootspec.v1 key are reported as
// ErrMalformedDescriptor.
func Parse(data []byte) (*BootSpec, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	return fromDocument(doc)
}

func fromDocument(doc document) (*BootSpec, error) {
	if doc.V1 == nil {
		return nil, fmt.Errorf("%w: missing org.nixos.bootspec.v1 key", ErrMalformedDescriptor)
	}

	spec := &BootSpec{
		Init:            doc.V1.Init,
		Initrd:          doc.V1.Initrd,
		InitrdSecrets:   doc.V1.InitrdSecrets,
		Kernel:          doc.V1.Kernel,
		KernelParams:    doc.V1.KernelParams,
		Label:           doc.V1.Label,
		System:          doc.V1.System,
		Toplevel:        doc.V1.Toplevel,
		SortKey:         DefaultSortKey,
		Specialisations: make(map[string]*BootSpec),
	}

	if doc.SystemdBoot != nil {
		if doc.SystemdBoot.SortKey != "" {
			spec.SortKey = doc.SystemdBoot.SortKey
		}
		spec.Devicetree = doc.SystemdBoot.Devicetree
	}

	for name, sub := range doc.Specialisations {
		subSpec, err := fromDocument(sub)
		if err != nil {
			return nil, fmt.Errorf("specialisation %q: %w", name, err)
		}
		spec.Specialisations[name] = subSpec
	}

	return spec, nil
}
