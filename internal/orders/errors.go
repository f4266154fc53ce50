package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyOrder = errors.New("at least one item is required")

	// ErrOrderNotFound covers both a missing row and an order the principal
	// is not allowed to see, so reads never leak existence.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderClosed: order sudah terminal, item tidak bisa diubah lagi.
	ErrOrderClosed = errors.New("order is closed")

	ErrProductInUse = errors.New("product is referenced by existing orders")
)

type InvalidQuantityError struct {
	ProductID string
	Requested int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %s", e.Requested, e.ProductID)
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Reason
}

type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
