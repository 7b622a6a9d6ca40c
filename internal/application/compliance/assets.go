package compliance

import (
	"sort"
	"strings"

	cyclonedx "github.com/CycloneDX/cyclonedx-go"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

const componentTypeCryptoAsset = "cryptographic-asset"

// CryptoAsset is one cryptographic component of a CBOM.
type CryptoAsset struct {
	BOMRef    string `json:"bomRef"`
	Name      string `json:"name"`
	AssetType string `json:"assetType,omitempty"`
}

// AssetsOf extracts the cryptographic assets of c, including nested components,
// sorted by bom-ref.
func AssetsOf(c *cbom.CBOM) []CryptoAsset {
	var out []CryptoAsset
	var walk func(comps []cyclonedx.Component)
	walk = func(comps []cyclonedx.Component) {
		for _, comp := range comps {
			if string(comp.Type) == componentTypeCryptoAsset {
				asset := CryptoAsset{BOMRef: comp.BOMRef, Name: comp.Name}
				if comp.CryptoProperties != nil {
					asset.AssetType = string(comp.CryptoProperties.AssetType)
				}
				out = append(out, asset)
			}
			if comp.Components != nil {
				walk(*comp.Components)
			}
		}
	}
	walk(c.Components())
	sort.Slice(out, func(i, j int) bool { return out[i].BOMRef < out[j].BOMRef })
	return out
}

// Inventory renders assets one per line for prompting.
func Inventory(assets []CryptoAsset) string {
	var b strings.Builder
	for _, a := range assets {
		b.WriteString("- ")
		b.WriteString(a.Name)
		if a.AssetType != "" {
			b.WriteString(" (" + a.AssetType + ")")
		}
		if a.BOMRef != "" {
			b.WriteString(" [" + a.BOMRef + "]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
