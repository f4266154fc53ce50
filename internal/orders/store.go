package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store runs a unit of work against the order/product storage. The callback
// either commits as a whole or leaves nothing behind.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is what a unit of work can do. Lookups return (nil, nil) when the row
// does not exist; the service decides which error that becomes.
type Tx interface {
	// ProductForUpdate locks the product row until the transaction ends, so
	// concurrent reservations against the same product serialize.
	ProductForUpdate(ctx context.Context, id string) (*Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) error

	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	DeleteOrder(ctx context.Context, id string) error
	OrderByID(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)

	InsertItems(ctx context.Context, items []OrderItem) error
	DeleteItems(ctx context.Context, orderID string) error
	ItemsByOrder(ctx context.Context, orderID string) ([]OrderItem, error)
}

type ListFilter struct {
	CustomerID  string // dipaksa oleh service untuk non-staff
	Status      *Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	MinTotal    *decimal.Decimal
	MaxTotal    *decimal.Decimal
}
