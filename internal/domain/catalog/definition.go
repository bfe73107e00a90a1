package catalog

import (
	"fmt"
	"strings"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Kind classifies a SKU definition
type Kind string

const (
	// KindProduct is a stockable SKU
	KindProduct Kind = "product"
	// KindVariant is a stockable SKU derived from a product (size, color, ...)
	KindVariant Kind = "variant"
	// KindBundle is a virtual SKU composed of other SKUs; it is never stocked
	KindBundle Kind = "bundle"
)

// IsValid reports whether k is a known kind
func (k Kind) IsValid() bool {
	switch k {
	case KindProduct, KindVariant, KindBundle:
		return true
	}
	return false
}

// Component is one entry of a bundle's bill of materials
type Component struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// Definition describes a SKU in the catalog
type Definition struct {
	SKU        string            `json:"sku"`
	Name       string            `json:"name"`
	Kind       Kind              `json:"kind"`
	ParentSKU  string            `json:"parent_sku,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Components []Component       `json:"components,omitempty"`
}

// IsBundle reports whether the definition is a bundle
func (d Definition) IsBundle() bool {
	return d.Kind == KindBundle
}

// Line is a requested quantity of a SKU
type Line struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func validateSKU(sku string) error {
	if sku == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "SKU cannot be empty")
	}
	if len(sku) > 64 {
		return shared.NewDomainError(shared.CodeInvalidInput, "SKU cannot exceed 64 characters")
	}
	return nil
}

// validate checks the definition in isolation, without looking at other SKUs
func (d *Definition) validate() error {
	d.SKU = normalizeSKU(d.SKU)
	if err := validateSKU(d.SKU); err != nil {
		return err
	}
	if !d.Kind.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown SKU kind %q", d.Kind))
	}

	switch d.Kind {
	case KindBundle:
		if len(d.Components) == 0 {
			return shared.NewDomainError(shared.CodeInvalidInput, "bundle must have at least one component")
		}
		for i := range d.Components {
			d.Components[i].SKU = normalizeSKU(d.Components[i].SKU)
			c := d.Components[i]
			if err := validateSKU(c.SKU); err != nil {
				return err
			}
			if c.Quantity <= 0 {
				return shared.NewDomainError(shared.CodeInvalidQuantity,
					fmt.Sprintf("component %s of bundle %s must have positive quantity", c.SKU, d.SKU))
			}
		}
	case KindVariant:
		d.ParentSKU = normalizeSKU(d.ParentSKU)
		if d.ParentSKU == "" {
			return shared.NewDomainError(shared.CodeInvalidInput, "variant must reference a parent product")
		}
		if len(d.Components) > 0 {
			return shared.NewDomainError(shared.CodeInvalidInput, "only bundles can have components")
		}
	default:
		if len(d.Components) > 0 {
			return shared.NewDomainError(shared.CodeInvalidInput, "only bundles can have components")
		}
	}
	return nil
}

func (d Definition) clone() Definition {
	out := d
	if d.Attributes != nil {
		out.Attributes = make(map[string]string, len(d.Attributes))
		for k, v := range d.Attributes {
			out.Attributes[k] = v
		}
	}
	if d.Components != nil {
		out.Components = append([]Component(nil), d.Components...)
	}
	return out
}
