package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Reservation is a validated, priced intent to take stock. Nothing is
// committed yet; applyReservations settles it inside the same transaction.
type Reservation struct {
	Product   *Product
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// mergeItems collapses repeated product ids into one line so the release
// math on later replacements stays exact. Input order is preserved. Each
// incoming pair is checked on its own before merging; a bad quantity must
// not hide behind a positive line for the same product.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	idx := make(map[string]int, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

// reserve locks every product in the batch, validates quantity and
// availability, and snapshots unit prices. Any failure rejects the whole
// batch; the caller's transaction rolls back and no stock moved.
func reserve(ctx context.Context, tx Tx, items []ItemInput) ([]Reservation, decimal.Decimal, error) {
	total := decimal.Zero
	out := make([]Reservation, 0, len(items))
	for _, it := range items {
		p, err := tx.ProductForUpdate(ctx, it.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if p == nil {
			return nil, decimal.Zero, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if it.Quantity < 1 {
			return nil, decimal.Zero, &InvalidQuantityError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		if p.Quantity < it.Quantity {
			return nil, decimal.Zero, &StockError{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Quantity}
		}
		line := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		out = append(out, Reservation{Product: p, Quantity: it.Quantity, UnitPrice: p.Price, LineTotal: line})
		total = total.Add(line)
	}
	return out, total, nil
}

// applyReservations settles the plan: one decrement per reserved product.
func applyReservations(ctx context.Context, tx Tx, rs []Reservation) error {
	for _, r := range rs {
		if err := tx.AdjustStock(ctx, r.Product.ID, -r.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// releaseItems puts held stock back, the inverse of applyReservations.
func releaseItems(ctx context.Context, tx Tx, items []OrderItem) error {
	for _, it := range items {
		if err := tx.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// recomputeTotal derives the cached order total from its items. Called once
// per transaction by the service, never implicitly per row write.
func recomputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
