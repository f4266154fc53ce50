package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the order lifecycle controller. Every mutation runs as one
// transaction: validation happens before any write, and any error rolls the
// whole unit back.
type Service struct {
	Store Store
}

func NewService(store Store) *Service {
	return &Service{Store: store}
}

type UpdateRequest struct {
	// Status, when set, requests a lifecycle transition.
	Status *Status
	// Items, when non-nil, replaces the whole item set. Old stock is
	// released first, then the new list is reserved with fresh prices.
	Items []ItemInput
}

func (s *Service) Create(ctx context.Context, p Principal, items []ItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	items, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	var out *Order
	err = s.Store.InTx(ctx, func(tx Tx) error {
		rs, total, err := reserve(ctx, tx, items)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		o := &Order{
			ID:         uuid.NewString(),
			CustomerID: p.ID,
			Status:     StatusPending,
			TotalPrice: total,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}

		oi := make([]OrderItem, 0, len(rs))
		for _, r := range rs {
			oi = append(oi, OrderItem{
				ID:        uuid.NewString(),
				OrderID:   o.ID,
				ProductID: r.Product.ID,
				Quantity:  r.Quantity,
				Price:     r.UnitPrice,
			})
		}
		if err := tx.InsertItems(ctx, oi); err != nil {
			return err
		}
		if err := applyReservations(ctx, tx, rs); err != nil {
			return err
		}

		o.Items = oi
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", out.ID).Str("customer_id", p.ID).
		Stringer("total", out.TotalPrice).Msg("order created")
	return out, nil
}

// Get applies the visibility rule: an order the principal cannot see is
// reported as not found, never as forbidden.
func (s *Service) Get(ctx context.Context, p Principal, orderID string) (*Order, error) {
	var out *Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil || !p.CanView(o) {
			return ErrOrderNotFound
		}
		if o.Items, err = tx.ItemsByOrder(ctx, o.ID); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, p Principal, f ListFilter) ([]Order, error) {
	if !p.Staff {
		f.CustomerID = p.ID
	}
	var out []Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		os, err := tx.ListOrders(ctx, f)
		if err != nil {
			return err
		}
		for i := range os {
			if os[i].Items, err = tx.ItemsByOrder(ctx, os[i].ID); err != nil {
				return err
			}
		}
		out = os
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, p Principal, orderID string, req UpdateRequest) (*Order, error) {
	var out *Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		// Mutation of someone else's order is an explicit 403, unlike reads.
		if !p.CanMutate(o) {
			return &PermissionDeniedError{Reason: "not your order"}
		}

		if req.Items != nil {
			if err := s.replaceItems(ctx, tx, o, req.Items); err != nil {
				return err
			}
		}

		if req.Status != nil && *req.Status != o.Status {
			if err := s.transition(ctx, tx, p, o, *req.Status); err != nil {
				return err
			}
		}

		o.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if o.Items == nil {
			if o.Items, err = tx.ItemsByOrder(ctx, o.ID); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", out.ID).Str("status", string(out.Status)).Msg("order updated")
	return out, nil
}

// replaceItems swaps the whole item set: release dulu, baru reserve ulang.
// If the new list cannot be reserved, the transaction rolls back and the old
// items plus their stock stay exactly as they were.
func (s *Service) replaceItems(ctx context.Context, tx Tx, o *Order, items []ItemInput) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	if o.Status.Terminal() {
		return ErrOrderClosed
	}

	merged, err := mergeItems(items)
	if err != nil {
		return err
	}

	old, err := tx.ItemsByOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if err := releaseItems(ctx, tx, old); err != nil {
		return err
	}

	rs, _, err := reserve(ctx, tx, merged)
	if err != nil {
		return err
	}
	if err := tx.DeleteItems(ctx, o.ID); err != nil {
		return err
	}

	oi := make([]OrderItem, 0, len(rs))
	for _, r := range rs {
		oi = append(oi, OrderItem{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: r.Product.ID,
			Quantity:  r.Quantity,
			Price:     r.UnitPrice,
		})
	}
	if err := tx.InsertItems(ctx, oi); err != nil {
		return err
	}
	if err := applyReservations(ctx, tx, rs); err != nil {
		return err
	}

	o.Items = oi
	o.TotalPrice = recomputeTotal(oi)
	return nil
}

func (s *Service) transition(ctx context.Context, tx Tx, p Principal, o *Order, to Status) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	if StaffOnly(to) && !p.Staff {
		return &PermissionDeniedError{Reason: "only staff can set status " + string(to)}
	}

	if to == StatusCancelled {
		items := o.Items
		if items == nil {
			var err error
			if items, err = tx.ItemsByOrder(ctx, o.ID); err != nil {
				return err
			}
		}
		// Reserved stock goes back to the product store; the item rows stay
		// as history on the now-terminal order.
		if err := releaseItems(ctx, tx, items); err != nil {
			return err
		}
	}

	o.Status = to
	return nil
}

// Delete removes an order entirely. Stock held by a still-open order is
// released first; cancelled orders already gave theirs back and completed
// orders shipped it.
func (s *Service) Delete(ctx context.Context, p Principal, orderID string) error {
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		if !p.CanMutate(o) {
			return &PermissionDeniedError{Reason: "not your order"}
		}

		if !o.Status.Terminal() {
			items, err := tx.ItemsByOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			if err := releaseItems(ctx, tx, items); err != nil {
				return err
			}
		}
		// items ikut terhapus (cascade)
		return tx.DeleteOrder(ctx, o.ID)
	})
	if err != nil {
		return err
	}

	log.Info().Str("order_id", orderID).Msg("order deleted")
	return nil
}
