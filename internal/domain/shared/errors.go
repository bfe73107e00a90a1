package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, shared.ErrInsufficientStock) matches any error of that kind.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeNotFound          = "NOT_FOUND"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidState      = "INVALID_STATE"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeCyclicBundle      = "CYCLIC_BUNDLE"
	CodeUnknownSKU        = "UNKNOWN_SKU"
	CodeUnknownWarehouse  = "UNKNOWN_WAREHOUSE"
	CodeWarehouseInactive = "WAREHOUSE_INACTIVE"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
)

// Common domain errors
var (
	ErrNotFound          = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists     = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput      = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState      = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInvalidQuantity   = NewDomainError(CodeInvalidQuantity, "Quantity must be positive")
	ErrInsufficientStock = NewDomainError(CodeInsufficientStock, "Insufficient stock available")
	ErrCyclicBundle      = NewDomainError(CodeCyclicBundle, "Bundle definition contains a cycle")
	ErrUnknownSKU        = NewDomainError(CodeUnknownSKU, "SKU is not defined")
	ErrUnknownWarehouse  = NewDomainError(CodeUnknownWarehouse, "Warehouse is not registered")
	ErrWarehouseInactive = NewDomainError(CodeWarehouseInactive, "Warehouse is not active")
	ErrCapacityExceeded  = NewDomainError(CodeCapacityExceeded, "Warehouse capacity exceeded")
)

// CodeOf returns the domain error code carried by err, or "" when err is not
// (and does not wrap) a domain error.
func CodeOf(err error) string {
	type coder interface{ ErrorCode() string }
	for err != nil {
		switch e := err.(type) {
		case *DomainError:
			return e.Code
		case coder:
			return e.ErrorCode()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
