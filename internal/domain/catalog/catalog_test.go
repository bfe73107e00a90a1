package catalog

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/fulfillment/internal/domain/shared"
)

func defineProducts(t *testing.T, c *Catalog, skus ...string) {
	t.Helper()
	for _, sku := range skus {
		_, err := c.Define(Definition{SKU: sku, Name: sku, Kind: KindProduct})
		require.NoError(t, err)
	}
}

func TestResolver_Expand(t *testing.T) {
	defs := Definitions{
		"X": {SKU: "X", Kind: KindProduct},
		"Y": {SKU: "Y", Kind: KindProduct},
		"Z": {SKU: "Z", Kind: KindProduct},
		"A": {SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 2}, {SKU: "Y", Quantity: 1}}},
		"B": {SKU: "B", Kind: KindBundle, Components: []Component{{SKU: "A", Quantity: 2}, {SKU: "X", Quantity: 1}, {SKU: "Z", Quantity: 3}}},
	}
	r := NewResolver(defs.Lookup)

	t.Run("bundle multiplies components", func(t *testing.T) {
		got, err := r.Expand("A", 3)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"X": 6, "Y": 3}, got)
	})

	t.Run("nested bundles sum repeated components", func(t *testing.T) {
		got, err := r.Expand("B", 2)
		require.NoError(t, err)
		// B = 2A + X + 3Z = 5X + 2Y + 3Z
		assert.Equal(t, map[string]int64{"X": 10, "Y": 4, "Z": 6}, got)
	})

	t.Run("concrete sku expands to itself", func(t *testing.T) {
		got, err := r.Expand("x", 4)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"X": 4}, got)
	})

	t.Run("unknown sku", func(t *testing.T) {
		_, err := r.Expand("NOPE", 1)
		var unknown *UnknownSKUError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "NOPE", unknown.SKU)
		assert.True(t, errors.Is(err, shared.ErrUnknownSKU))
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		_, err := r.Expand("A", 0)
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
	})

	t.Run("does not mutate definitions", func(t *testing.T) {
		_, err := r.Expand("B", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(2), defs["B"].Components[0].Quantity)
	})
}

func TestResolver_ExpandCycle(t *testing.T) {
	defs := Definitions{
		"X": {SKU: "X", Kind: KindProduct},
		"A": {SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 1}, {SKU: "B", Quantity: 1}}},
		"B": {SKU: "B", Kind: KindBundle, Components: []Component{{SKU: "A", Quantity: 1}}},
	}
	_, err := NewResolver(defs.Lookup).Expand("A", 1)

	var cyc *CyclicBundleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"A", "B", "A"}, cyc.Path)
	assert.True(t, errors.Is(err, shared.ErrCyclicBundle))
	assert.Equal(t, shared.CodeCyclicBundle, shared.CodeOf(err))
}

func TestResolver_ExpandOverflow(t *testing.T) {
	defs := Definitions{
		"X": {SKU: "X", Kind: KindProduct},
		"A": {SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 4}}},
		"B": {SKU: "B", Kind: KindBundle, Components: []Component{{SKU: "A", Quantity: 1 << 31}}},
		"C": {SKU: "C", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 1 << 61}, {SKU: "X", Quantity: 1 << 61}, {SKU: "X", Quantity: 1 << 61}, {SKU: "X", Quantity: 1 << 61}}},
	}
	r := NewResolver(defs.Lookup)

	t.Run("multiplication", func(t *testing.T) {
		got, err := r.Expand("A", 1<<62)
		assert.Nil(t, got)
		var overflow *QuantityOverflowError
		require.ErrorAs(t, err, &overflow)
		assert.Equal(t, "X", overflow.SKU)
		assert.Equal(t, []string{"A", "X"}, overflow.Path)
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
		assert.Equal(t, shared.CodeInvalidQuantity, shared.CodeOf(err))
	})

	t.Run("nested multiplication", func(t *testing.T) {
		_, err := r.Expand("B", 1<<31)
		var overflow *QuantityOverflowError
		require.ErrorAs(t, err, &overflow)
		assert.Equal(t, []string{"B", "A", "X"}, overflow.Path)
	})

	t.Run("summing repeated components", func(t *testing.T) {
		_, err := r.Expand("C", 1)
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
	})

	t.Run("summing across lines", func(t *testing.T) {
		_, err := r.ExpandLines([]Line{{SKU: "X", Quantity: math.MaxInt64}, {SKU: "A", Quantity: 1}})
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
	})

	t.Run("largest representable demand", func(t *testing.T) {
		got, err := r.Expand("A", math.MaxInt64/4)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"X": math.MaxInt64 / 4 * 4}, got)
	})
}

func TestResolver_ExpandLines(t *testing.T) {
	defs := Definitions{
		"X": {SKU: "X", Kind: KindProduct},
		"Y": {SKU: "Y", Kind: KindProduct},
		"A": {SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 2}, {SKU: "Y", Quantity: 1}}},
	}
	r := NewResolver(defs.Lookup)

	got, err := r.ExpandLines([]Line{{SKU: "A", Quantity: 1}, {SKU: "X", Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 5, "Y": 1}, got)

	_, err = r.ExpandLines([]Line{{SKU: "A", Quantity: 1}, {SKU: "MISSING", Quantity: 1}})
	assert.True(t, errors.Is(err, shared.ErrUnknownSKU))

	_, err = r.ExpandLines(nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestCatalog_Define(t *testing.T) {
	t.Run("bundle with undefined component is rejected", func(t *testing.T) {
		c := NewCatalog()
		_, err := c.Define(Definition{SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 1}}})
		assert.True(t, errors.Is(err, shared.ErrUnknownSKU))
	})

	t.Run("bundle needs components with positive quantity", func(t *testing.T) {
		c := NewCatalog()
		defineProducts(t, c, "X")
		_, err := c.Define(Definition{SKU: "A", Kind: KindBundle})
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
		_, err = c.Define(Definition{SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 0}}})
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
	})

	t.Run("self reference is a cycle", func(t *testing.T) {
		c := NewCatalog()
		defineProducts(t, c, "X")
		_, err := c.Define(Definition{SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "A", Quantity: 1}}})
		assert.True(t, errors.Is(err, shared.ErrCyclicBundle))
	})

	t.Run("redefinition creating a cycle is rejected and keeps the old definition", func(t *testing.T) {
		c := NewCatalog()
		defineProducts(t, c, "X")
		_, err := c.Define(Definition{SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 1}}})
		require.NoError(t, err)
		_, err = c.Define(Definition{SKU: "B", Kind: KindBundle, Components: []Component{{SKU: "A", Quantity: 2}}})
		require.NoError(t, err)

		_, err = c.Define(Definition{SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "B", Quantity: 1}}})
		var cyc *CyclicBundleError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"A", "B", "A"}, cyc.Path)

		got, err := c.Expand("B", 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"X": 2}, got)
	})

	t.Run("variant requires product parent", func(t *testing.T) {
		c := NewCatalog()
		_, err := c.Define(Definition{SKU: "TSHIRT-RED-M", Kind: KindVariant, ParentSKU: "TSHIRT"})
		assert.True(t, errors.Is(err, shared.ErrUnknownSKU))

		defineProducts(t, c, "TSHIRT")
		def, err := c.Define(Definition{
			SKU:        "tshirt-red-m",
			Kind:       KindVariant,
			ParentSKU:  "tshirt",
			Attributes: map[string]string{"color": "red", "size": "M"},
		})
		require.NoError(t, err)
		assert.Equal(t, "TSHIRT-RED-M", def.SKU)
		assert.Equal(t, "TSHIRT", def.ParentSKU)

		variants := c.Variants("TSHIRT")
		require.Len(t, variants, 1)
		assert.Equal(t, "red", variants[0].Attributes["color"])

		got, err := c.Expand("TSHIRT-RED-M", 2)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"TSHIRT-RED-M": 2}, got)
	})

	t.Run("unknown kind", func(t *testing.T) {
		c := NewCatalog()
		_, err := c.Define(Definition{SKU: "A", Kind: "service"})
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("returned definitions are copies", func(t *testing.T) {
		c := NewCatalog()
		defineProducts(t, c, "X")
		def, err := c.Define(Definition{SKU: "A", Kind: KindBundle, Components: []Component{{SKU: "X", Quantity: 1}}})
		require.NoError(t, err)
		def.Components[0].Quantity = 99

		stored, ok := c.Get("A")
		require.True(t, ok)
		assert.Equal(t, int64(1), stored.Components[0].Quantity)
		assert.Len(t, c.List(), 2)
	})
}
