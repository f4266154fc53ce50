package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = Principal{ID: "cust-1"}
	other    = Principal{ID: "cust-2"}
	staff    = Principal{ID: "staff-1", Staff: true}
)

func newTestService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	ms := NewMemStore()
	// Product A qty=5 price=10; Product B qty=3 price=20 (spec scenario setup).
	seedProduct(t, ms, "a", 10, 5)
	seedProduct(t, ms, "b", 20, 3)
	return NewService(ms), ms
}

func countOrders(t *testing.T, s *Service) int {
	t.Helper()
	os, err := s.List(context.Background(), staff, ListFilter{})
	require.NoError(t, err)
	return len(os)
}

func TestCreate_ComputesTotalAndDecrementsStock(t *testing.T) {
	svc, ms := newTestService(t)

	o, err := svc.Create(context.Background(), customer, []ItemInput{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, customer.ID, o.CustomerID)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(40)), "total = %s", o.TotalPrice)
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.Items[1].Price.Equal(decimal.NewFromInt(20)))

	assert.Equal(t, 3, stockOf(t, ms, "a"))
	assert.Equal(t, 2, stockOf(t, ms, "b"))
}

func TestCreate_EmptyItems(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), customer, nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = svc.Create(context.Background(), customer, []ItemInput{})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestCreate_InsufficientStock(t *testing.T) {
	svc, ms := newTestService(t)

	_, err := svc.Create(context.Background(), customer, []ItemInput{
		{ProductID: "a", Quantity: 10},
	})
	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.ProductID)
	assert.Equal(t, 10, se.Requested)
	assert.Equal(t, 5, se.Available)

	assert.Equal(t, 0, countOrders(t, svc))
	assert.Equal(t, 5, stockOf(t, ms, "a"))
}

func TestCreate_AtomicAcrossBatch(t *testing.T) {
	svc, ms := newTestService(t)

	// first line is reservable, second is not; nothing may stick
	_, err := svc.Create(context.Background(), customer, []ItemInput{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 99},
	})
	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b", se.ProductID)

	assert.Equal(t, 0, countOrders(t, svc))
	assert.Equal(t, 5, stockOf(t, ms, "a"))
	assert.Equal(t, 3, stockOf(t, ms, "b"))
}

func TestCreate_RejectsNegativeLineAmongDuplicates(t *testing.T) {
	svc, ms := newTestService(t)

	// merged sum would be 1, but the -1 line itself is invalid
	_, err := svc.Create(context.Background(), customer, []ItemInput{
		{ProductID: "a", Quantity: 2},
		{ProductID: "a", Quantity: -1},
	})
	var iq *InvalidQuantityError
	require.ErrorAs(t, err, &iq)
	assert.Equal(t, "a", iq.ProductID)
	assert.Equal(t, -1, iq.Requested)

	assert.Equal(t, 0, countOrders(t, svc))
	assert.Equal(t, 5, stockOf(t, ms, "a"))
}

func TestCreate_MergesDuplicateLines(t *testing.T) {
	svc, ms := newTestService(t)

	o, err := svc.Create(context.Background(), customer, []ItemInput{
		{ProductID: "a", Quantity: 1},
		{ProductID: "a", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, 2, stockOf(t, ms, "a"))
}

func TestCreate_PriceFrozenAtOrderTime(t *testing.T) {
	svc, ms := newTestService(t)

	o, err := svc.Create(context.Background(), customer, []ItemInput{
		{ProductID: "a", Quantity: 2},
	})
	require.NoError(t, err)

	// Catalog price changes afterwards; the item snapshot must not move.
	p, err := ms.GetProduct(context.Background(), "a")
	require.NoError(t, err)
	p.Price = decimal.NewFromInt(99)
	require.NoError(t, ms.UpdateProduct(context.Background(), p))

	got, err := svc.Get(context.Background(), customer, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(20)))
}

func TestCreate_ConcurrentNeverOversells(t *testing.T) {
	svc, ms := newTestService(t)

	const attempts = 20 // product a holds 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), customer, []ItemInput{
				{ProductID: "a", Quantity: 1},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var se *StockError
		assert.ErrorAs(t, err, &se)
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, stockOf(t, ms, "a"))
	assert.Equal(t, 5, countOrders(t, svc))
}

func TestGet_Visibility(t *testing.T) {
	svc, _ := newTestService(t)
	o, err := svc.Create(context.Background(), customer, []ItemInput{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), customer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.Get(context.Background(), staff, o.ID)
	assert.NoError(t, err)

	// non-owner read is a not-found, never a forbidden
	_, err = svc.Get(context.Background(), other, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Get(context.Background(), customer, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestList_ScopeAndFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o1, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}}) // total 10
	require.NoError(t, err)
	_, err = svc.Create(ctx, other, []ItemInput{{ProductID: "b", Quantity: 1}}) // total 20
	require.NoError(t, err)

	mine, err := svc.List(ctx, customer, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o1.ID, mine[0].ID)
	require.Len(t, mine[0].Items, 1)

	all, err := svc.List(ctx, staff, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// scope wins even if a customer asks for someone else's orders
	scoped, err := svc.List(ctx, customer, ListFilter{CustomerID: other.ID})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, o1.ID, scoped[0].ID)

	st := StatusPending
	pending, err := svc.List(ctx, staff, ListFilter{Status: &st})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	min := decimal.NewFromInt(15)
	expensive, err := svc.List(ctx, staff, ListFilter{MinTotal: &min})
	require.NoError(t, err)
	require.Len(t, expensive, 1)
	assert.True(t, expensive[0].TotalPrice.Equal(decimal.NewFromInt(20)))
}

func TestUpdate_ReplaceItems(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 3, stockOf(t, ms, "a"))

	// {a:2} -> {a:1, b:1}: old stock released first, then re-reserved
	upd, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Items: []ItemInput{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 1},
	}})
	require.NoError(t, err)

	assert.Equal(t, 4, stockOf(t, ms, "a"))
	assert.Equal(t, 2, stockOf(t, ms, "b"))
	assert.True(t, upd.TotalPrice.Equal(decimal.NewFromInt(30)), "total = %s", upd.TotalPrice)
	require.Len(t, upd.Items, 2)
}

func TestUpdate_ReplaceCanReuseReleasedStock(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	// all 5 of a held by the order; bumping to 5 again must pass because the
	// old hold is released before the new reservation is checked
	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 5}})
	require.NoError(t, err)
	require.Equal(t, 0, stockOf(t, ms, "a"))

	upd, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Items: []ItemInput{
		{ProductID: "a", Quantity: 4},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, stockOf(t, ms, "a"))
	assert.True(t, upd.TotalPrice.Equal(decimal.NewFromInt(40)))
}

func TestUpdate_ReplaceRollsBackWhole(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 2}})
	require.NoError(t, err)

	_, err = svc.Update(ctx, customer, o.ID, UpdateRequest{Items: []ItemInput{
		{ProductID: "b", Quantity: 99},
	}})
	var se *StockError
	require.ErrorAs(t, err, &se)

	// everything exactly as before the call
	assert.Equal(t, 3, stockOf(t, ms, "a"))
	assert.Equal(t, 3, stockOf(t, ms, "b"))

	got, err := svc.Get(ctx, customer, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "a", got.Items[0].ProductID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(20)))
}

func TestUpdate_ReplaceSnapshotsFreshPrices(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)

	p, err := ms.GetProduct(ctx, "a")
	require.NoError(t, err)
	p.Price = decimal.NewFromInt(15)
	require.NoError(t, ms.UpdateProduct(ctx, p))

	upd, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Items: []ItemInput{
		{ProductID: "a", Quantity: 2},
	}})
	require.NoError(t, err)
	require.Len(t, upd.Items, 1)
	assert.True(t, upd.Items[0].Price.Equal(decimal.NewFromInt(15)))
	assert.True(t, upd.TotalPrice.Equal(decimal.NewFromInt(30)))
}

func TestUpdate_ReplaceWithEmptyList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)

	_, err = svc.Update(ctx, customer, o.ID, UpdateRequest{Items: []ItemInput{}})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestUpdate_StatusTransitions(t *testing.T) {
	ctx := context.Background()

	newOrder := func(t *testing.T) (*Service, *MemStore, *Order) {
		svc, ms := newTestService(t)
		o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 2}})
		require.NoError(t, err)
		return svc, ms, o
	}
	status := func(s Status) *Status { return &s }

	t.Run("staff moves pending to processing", func(t *testing.T) {
		svc, _, o := newOrder(t)
		upd, err := svc.Update(ctx, staff, o.ID, UpdateRequest{Status: status(StatusProcessing)})
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, upd.Status)
	})

	t.Run("customer cannot move to processing", func(t *testing.T) {
		svc, _, o := newOrder(t)
		_, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Status: status(StatusProcessing)})
		var pd *PermissionDeniedError
		require.ErrorAs(t, err, &pd)
	})

	t.Run("customer cannot complete own order", func(t *testing.T) {
		svc, _, o := newOrder(t)
		_, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Status: status(StatusCompleted)})
		var pd *PermissionDeniedError
		require.ErrorAs(t, err, &pd)

		got, err := svc.Get(ctx, customer, o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})

	t.Run("staff completes from processing", func(t *testing.T) {
		svc, _, o := newOrder(t)
		_, err := svc.Update(ctx, staff, o.ID, UpdateRequest{Status: status(StatusProcessing)})
		require.NoError(t, err)
		upd, err := svc.Update(ctx, staff, o.ID, UpdateRequest{Status: status(StatusCompleted)})
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, upd.Status)
	})

	t.Run("owner cancellation releases stock", func(t *testing.T) {
		svc, ms, o := newOrder(t)
		require.Equal(t, 3, stockOf(t, ms, "a"))

		upd, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Status: status(StatusCancelled)})
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, upd.Status)
		assert.Equal(t, 5, stockOf(t, ms, "a"))
		// items stay as history
		require.Len(t, upd.Items, 1)
	})

	t.Run("completed is terminal", func(t *testing.T) {
		svc, _, o := newOrder(t)
		_, err := svc.Update(ctx, staff, o.ID, UpdateRequest{Status: status(StatusCompleted)})
		require.NoError(t, err)

		_, err = svc.Update(ctx, staff, o.ID, UpdateRequest{Status: status(StatusCancelled)})
		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StatusCompleted, te.From)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		svc, _, o := newOrder(t)
		upd, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Status: status(StatusPending)})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, upd.Status)
	})

	t.Run("cancel twice does not double release", func(t *testing.T) {
		svc, ms, o := newOrder(t)
		_, err := svc.Update(ctx, customer, o.ID, UpdateRequest{Status: status(StatusCancelled)})
		require.NoError(t, err)
		require.Equal(t, 5, stockOf(t, ms, "a"))

		_, err = svc.Update(ctx, customer, o.ID, UpdateRequest{Status: status(StatusCancelled)})
		require.NoError(t, err) // no-op
		assert.Equal(t, 5, stockOf(t, ms, "a"))
	})
}

func TestUpdate_TerminalOrderItemsLocked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)
	st := StatusCancelled
	_, err = svc.Update(ctx, customer, o.ID, UpdateRequest{Status: &st})
	require.NoError(t, err)

	_, err = svc.Update(ctx, customer, o.ID, UpdateRequest{Items: []ItemInput{
		{ProductID: "b", Quantity: 1},
	}})
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestUpdate_NonOwnerGetsForbidden(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)

	// unlike reads, mutating someone else's order is an explicit forbidden
	st := StatusCancelled
	_, err = svc.Update(ctx, other, o.ID, UpdateRequest{Status: &st})
	var pd *PermissionDeniedError
	require.ErrorAs(t, err, &pd)

	_, err = svc.Update(ctx, customer, "missing", UpdateRequest{Status: &st})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("owner delete releases held stock", func(t *testing.T) {
		svc, ms := newTestService(t)
		o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 2}})
		require.NoError(t, err)
		require.Equal(t, 3, stockOf(t, ms, "a"))

		require.NoError(t, svc.Delete(ctx, customer, o.ID))
		assert.Equal(t, 5, stockOf(t, ms, "a"))
		_, err = svc.Get(ctx, staff, o.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("deleting a cancelled order does not release twice", func(t *testing.T) {
		svc, ms := newTestService(t)
		o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 2}})
		require.NoError(t, err)
		st := StatusCancelled
		_, err = svc.Update(ctx, customer, o.ID, UpdateRequest{Status: &st})
		require.NoError(t, err)
		require.Equal(t, 5, stockOf(t, ms, "a"))

		require.NoError(t, svc.Delete(ctx, customer, o.ID))
		assert.Equal(t, 5, stockOf(t, ms, "a"))
	})

	t.Run("non-owner delete is forbidden", func(t *testing.T) {
		svc, _ := newTestService(t)
		o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}})
		require.NoError(t, err)

		err = svc.Delete(ctx, other, o.ID)
		var pd *PermissionDeniedError
		require.ErrorAs(t, err, &pd)
	})
}

func TestDeleteProduct_ProtectedWhileReferenced(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, customer, []ItemInput{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)

	err = ms.DeleteProduct(ctx, "a")
	assert.ErrorIs(t, err, ErrProductInUse)

	require.NoError(t, svc.Delete(ctx, customer, o.ID))
	assert.NoError(t, ms.DeleteProduct(ctx, "a"))
}
