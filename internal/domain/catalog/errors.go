package catalog

import (
	"fmt"
	"strings"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// CyclicBundleError is returned when a bundle transitively contains itself.
// Path lists the SKUs from the first occurrence of the repeated SKU back to it.
type CyclicBundleError struct {
	Path []string
}

func (e *CyclicBundleError) Error() string {
	return fmt.Sprintf("cyclic bundle: %s", strings.Join(e.Path, " -> "))
}

// Is matches shared.ErrCyclicBundle
func (e *CyclicBundleError) Is(target error) bool {
	t, ok := target.(*shared.DomainError)
	return ok && t.Code == shared.CodeCyclicBundle
}

// ErrorCode returns the domain error code
func (e *CyclicBundleError) ErrorCode() string { return shared.CodeCyclicBundle }

// UnknownSKUError is returned when a SKU has no definition
type UnknownSKUError struct {
	SKU string
}

func (e *UnknownSKUError) Error() string {
	return fmt.Sprintf("unknown SKU %s", e.SKU)
}

// Is matches shared.ErrUnknownSKU
func (e *UnknownSKUError) Is(target error) bool {
	t, ok := target.(*shared.DomainError)
	return ok && t.Code == shared.CodeUnknownSKU
}

// ErrorCode returns the domain error code
func (e *UnknownSKUError) ErrorCode() string { return shared.CodeUnknownSKU }

// QuantityOverflowError is returned when the expanded demand for a SKU does
// not fit in an int64. Path is the bundle chain that led to it.
type QuantityOverflowError struct {
	SKU  string
	Path []string
}

func (e *QuantityOverflowError) Error() string {
	return fmt.Sprintf("demand for %s overflows: %s", e.SKU, strings.Join(e.Path, " -> "))
}

// Is matches shared.ErrInvalidQuantity
func (e *QuantityOverflowError) Is(target error) bool {
	t, ok := target.(*shared.DomainError)
	return ok && t.Code == shared.CodeInvalidQuantity
}

// ErrorCode returns the domain error code
func (e *QuantityOverflowError) ErrorCode() string { return shared.CodeInvalidQuantity }
