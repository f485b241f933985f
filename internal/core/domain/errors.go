package domain

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindNotFound              ErrorKind = "NOT_FOUND"
	KindInsufficientInventory ErrorKind = "INSUFFICIENT_INVENTORY"
	KindInvalidAdjustment     ErrorKind = "INVALID_ADJUSTMENT"
	KindConcurrencyConflict   ErrorKind = "CONCURRENCY_CONFLICT"
	KindValidation            ErrorKind = "VALIDATION"
	KindDuplicateRequest      ErrorKind = "DUPLICATE_REQUEST"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory, Message: "insufficient inventory"}
	ErrInvalidAdjustment     = &Error{Kind: KindInvalidAdjustment, Message: "invalid adjustment"}
	ErrConcurrencyConflict   = &Error{Kind: KindConcurrencyConflict, Message: "concurrency conflict"}
	ErrValidation            = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrDuplicateAllocation   = &Error{Kind: KindDuplicateRequest, Message: "allocation already submitted"}
)

// Shortfall describes one order line that could not be reserved.
// Missing is set when the location has no ledger record for the SKU.
type Shortfall struct {
	SkuID     string `json:"skuId"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Missing   bool   `json:"missing,omitempty"`
}

type Error struct {
	Kind       ErrorKind   `json:"kind"`
	Message    string      `json:"message"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Shortfalls) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s required %d available %d", s.SkuID, s.Required, s.Available))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, "; "))
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrencyConflict
}

func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidAdjustment(message string) *Error {
	return &Error{Kind: KindInvalidAdjustment, Message: message}
}

func NewValidation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewConcurrencyConflict(message string) *Error {
	return &Error{Kind: KindConcurrencyConflict, Message: message}
}

func NewInsufficientInventory(shortfalls []Shortfall) *Error {
	return &Error{
		Kind:       KindInsufficientInventory,
		Message:    "insufficient inventory",
		Shortfalls: shortfalls,
	}
}
