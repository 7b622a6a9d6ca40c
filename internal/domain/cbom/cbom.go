package cbom

import (
	"bytes"
	"fmt"
	"sort"

	cyclonedx "github.com/CycloneDX/cyclonedx-go"
)

// Metadata property names attached to a scanned artifact.
const (
	PropertyGitURL   = "gitUrl"
	PropertyRevision = "revision"
	PropertyCommit   = "commit"
	PropertyFolder   = "subfolder"
)

// CBOM is a cryptography bill of materials, stored as a CycloneDX document.
type CBOM struct {
	bom *cyclonedx.BOM
}

// New wraps an existing CycloneDX document. A nil document yields an empty BOM.
func New(bom *cyclonedx.BOM) *CBOM {
	if bom == nil {
		bom = cyclonedx.NewBOM()
	}
	return &CBOM{bom: bom}
}

// FromJSON decodes a CycloneDX JSON document.
func FromJSON(data []byte) (*CBOM, error) {
	var bom cyclonedx.BOM
	if err := cyclonedx.NewBOMDecoder(bytes.NewReader(data), cyclonedx.BOMFileFormatJSON).Decode(&bom); err != nil {
		return nil, fmt.Errorf("decode cbom: %w", err)
	}
	return &CBOM{bom: &bom}, nil
}

// JSON encodes the document as CycloneDX JSON.
func (c *CBOM) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := cyclonedx.NewBOMEncoder(&buf, cyclonedx.BOMFileFormatJSON)
	enc.SetPretty(false)
	if err := enc.Encode(c.bom); err != nil {
		return nil, fmt.Errorf("encode cbom: %w", err)
	}
	return buf.Bytes(), nil
}

// BOM exposes the underlying CycloneDX document.
func (c *CBOM) BOM() *cyclonedx.BOM { return c.bom }

// Components returns a copy of the top level components.
func (c *CBOM) Components() []cyclonedx.Component {
	if c.bom.Components == nil {
		return nil
	}
	out := make([]cyclonedx.Component, len(*c.bom.Components))
	copy(out, *c.bom.Components)
	return out
}

// Properties returns the metadata properties as a map.
func (c *CBOM) Properties() map[string]string {
	out := map[string]string{}
	if c.bom.Metadata == nil || c.bom.Metadata.Properties == nil {
		return out
	}
	for _, p := range *c.bom.Metadata.Properties {
		out[p.Name] = p.Value
	}
	return out
}

// AddMetadata records where the artifact was scanned from. Empty values are skipped
// and existing properties with the same name are overwritten.
func (c *CBOM) AddMetadata(gitURL, revision, commit, folder string) {
	if c.bom.Metadata == nil {
		c.bom.Metadata = &cyclonedx.Metadata{}
	}
	props := map[string]string{}
	if c.bom.Metadata.Properties != nil {
		for _, p := range *c.bom.Metadata.Properties {
			props[p.Name] = p.Value
		}
	}
	for name, value := range map[string]string{
		PropertyGitURL:   gitURL,
		PropertyRevision: revision,
		PropertyCommit:   commit,
		PropertyFolder:   folder,
	} {
		if value != "" {
			props[name] = value
		}
	}
	c.bom.Metadata.Properties = sortedProperties(props)
}

// Merge combines two artifacts into a new one. Components are deduplicated by
// bom-ref (or by type/name/version/purl when no bom-ref is set), dependencies by ref.
// Neither input is modified.
func Merge(a, b *CBOM) *CBOM {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b.clone()
	case b == nil:
		return a.clone()
	}

	out := cyclonedx.NewBOM()
	out.SerialNumber = a.bom.SerialNumber
	out.Metadata = mergeMetadata(a.bom.Metadata, b.bom.Metadata)

	seen := map[string]struct{}{}
	var components []cyclonedx.Component
	for _, src := range []*cyclonedx.BOM{a.bom, b.bom} {
		if src.Components == nil {
			continue
		}
		for _, comp := range *src.Components {
			key := componentKey(comp)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			components = append(components, comp)
		}
	}
	sort.SliceStable(components, func(i, j int) bool {
		return componentKey(components[i]) < componentKey(components[j])
	})
	if len(components) > 0 {
		out.Components = &components
	}

	deps := map[string]map[string]struct{}{}
	for _, src := range []*cyclonedx.BOM{a.bom, b.bom} {
		if src.Dependencies == nil {
			continue
		}
		for _, d := range *src.Dependencies {
			set, ok := deps[d.Ref]
			if !ok {
				set = map[string]struct{}{}
				deps[d.Ref] = set
			}
			if d.Dependencies != nil {
				for _, on := range *d.Dependencies {
					set[on] = struct{}{}
				}
			}
		}
	}
	if len(deps) > 0 {
		refs := make([]string, 0, len(deps))
		for ref := range deps {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		dependencies := make([]cyclonedx.Dependency, 0, len(refs))
		for _, ref := range refs {
			dep := cyclonedx.Dependency{Ref: ref}
			if on := sortedKeys(deps[ref]); len(on) > 0 {
				dep.Dependencies = &on
			}
			dependencies = append(dependencies, dep)
		}
		out.Dependencies = &dependencies
	}
	return &CBOM{bom: out}
}

func (c *CBOM) clone() *CBOM {
	// round-trip through the codec so nested pointers are not shared
	data, err := c.JSON()
	if err != nil {
		return &CBOM{bom: c.bom}
	}
	cp, err := FromJSON(data)
	if err != nil {
		return &CBOM{bom: c.bom}
	}
	return cp
}

func mergeMetadata(a, b *cyclonedx.Metadata) *cyclonedx.Metadata {
	if a == nil && b == nil {
		return nil
	}
	out := &cyclonedx.Metadata{}
	props := map[string]string{}
	for _, m := range []*cyclonedx.Metadata{a, b} {
		if m == nil {
			continue
		}
		if out.Timestamp == "" || m.Timestamp > out.Timestamp {
			out.Timestamp = m.Timestamp
		}
		if out.Component == nil && m.Component != nil {
			out.Component = m.Component
		}
		if out.Tools == nil && m.Tools != nil {
			out.Tools = m.Tools
		}
		if m.Properties != nil {
			for _, p := range *m.Properties {
				if _, ok := props[p.Name]; !ok {
					props[p.Name] = p.Value
				}
			}
		}
	}
	out.Properties = sortedProperties(props)
	return out
}

func componentKey(c cyclonedx.Component) string {
	if c.BOMRef != "" {
		return "ref:" + c.BOMRef
	}
	return fmt.Sprintf("%s|%s|%s|%s", c.Type, c.Name, c.Version, c.PackageURL)
}

func sortedProperties(props map[string]string) *[]cyclonedx.Property {
	if len(props) == 0 {
		return nil
	}
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]cyclonedx.Property, 0, len(names))
	for _, n := range names {
		out = append(out, cyclonedx.Property{Name: n, Value: props[n]})
	}
	return &out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
