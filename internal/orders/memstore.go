package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store with the same transactional contract as the
// Postgres Repo: the callback works on a copy, and only a nil return commits
// it. One mutex serializes transactions, which is what the row locks buy us
// in Postgres. Used by the tests and handy for local runs without a database.
type MemStore struct {
	mu       sync.Mutex
	products map[string]Product
	orders   map[string]Order
	items    map[string][]OrderItem // by order id
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: make(map[string]Product),
		orders:   make(map[string]Order),
		items:    make(map[string][]OrderItem),
	}
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		products: cloneMap(s.products),
		orders:   cloneMap(s.orders),
		items:    cloneItems(s.items),
	}
	if err := fn(tx); err != nil {
		return err // salinan dibuang, state tetap
	}
	s.products, s.orders, s.items = tx.products, tx.orders, tx.items
	return nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneItems(m map[string][]OrderItem) map[string][]OrderItem {
	out := make(map[string][]OrderItem, len(m))
	for k, v := range m {
		out[k] = append([]OrderItem(nil), v...)
	}
	return out
}

type memTx struct {
	products map[string]Product
	orders   map[string]Order
	items    map[string][]OrderItem
}

func (t *memTx) ProductForUpdate(_ context.Context, id string) (*Product, error) {
	p, ok := t.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID string, delta int) error {
	p, ok := t.products[productID]
	if !ok {
		return &ProductNotFoundError{ProductID: productID}
	}
	p.Quantity += delta
	p.UpdatedAt = time.Now().UTC()
	t.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	c := *o
	c.Items = nil
	t.orders[o.ID] = c
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *Order) error {
	c := *o
	c.Items = nil
	t.orders[o.ID] = c
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id string) error {
	delete(t.orders, id)
	delete(t.items, id)
	return nil
}

func (t *memTx) OrderByID(_ context.Context, id string) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *memTx) ListOrders(_ context.Context, f ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range t.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.CreatedFrom != nil && o.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && o.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		if f.MinTotal != nil && o.TotalPrice.LessThan(*f.MinTotal) {
			continue
		}
		if f.MaxTotal != nil && o.TotalPrice.GreaterThan(*f.MaxTotal) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertItems(_ context.Context, items []OrderItem) error {
	for _, it := range items {
		t.items[it.OrderID] = append(t.items[it.OrderID], it)
	}
	return nil
}

func (t *memTx) DeleteItems(_ context.Context, orderID string) error {
	delete(t.items, orderID)
	return nil
}

func (t *memTx) ItemsByOrder(_ context.Context, orderID string) ([]OrderItem, error) {
	return append([]OrderItem(nil), t.items[orderID]...), nil
}

// ---- product store surface, mirroring ProductRepo ----

func (s *MemStore) ListProducts(_ context.Context, search string) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(search)
	var out []Product
	for _, p := range s.products {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) GetProduct(_ context.Context, id string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemStore) CreateProduct(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = *p
	return nil
}

func (s *MemStore) UpdateProduct(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return &ProductNotFoundError{ProductID: p.ID}
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = *p
	return nil
}

func (s *MemStore) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return &ProductNotFoundError{ProductID: id}
	}
	for _, items := range s.items {
		for _, it := range items {
			if it.ProductID == id {
				return ErrProductInUse
			}
		}
	}
	delete(s.products, id)
	return nil
}
