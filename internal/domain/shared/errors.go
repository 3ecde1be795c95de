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

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists        = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput         = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict  = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInvalidEvent         = NewDomainError("INVALID_EVENT", "Usage event failed validation")
	ErrPeriodClosed         = NewDomainError("PERIOD_CLOSED", "Billing period no longer accepts usage events")
	ErrUnknownTenant        = NewDomainError("UNKNOWN_TENANT", "Tenant does not exist or is not active")
	ErrMissingRateCard      = NewDomainError("MISSING_RATE_CARD", "Tenant has no active rate card")
	ErrInvoiceAlreadyExists = NewDomainError("INVOICE_ALREADY_EXISTS", "Billing period already has an invoice")
)
