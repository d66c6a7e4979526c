// Package memory is an in-process implementation of the user, product and
// order repositories. One mutex guards the whole store, so stock mutations
// serialize exactly like the row-locked Postgres workflow. Selected with
// STORE_BACKEND=memory and used throughout the handler and workflow tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ecom-backend/internal/order"
	"github.com/MikeMC777/ecom-backend/internal/product"
	"github.com/MikeMC777/ecom-backend/internal/user"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]*user.User
	products map[string]*product.Product
	orders   map[string]*order.Order
	items    map[string][]order.Item
	seq      map[string]int // insertion order, tie-breaker for equal timestamps
	nextSeq  int
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*user.User),
		products: make(map[string]*product.Product),
		orders:   make(map[string]*order.Order),
		items:    make(map[string][]order.Item),
		seq:      make(map[string]int),
	}
}

// SetOrderStatus force-sets an order status. The workflow itself never
// produces shipped/delivered, tests need a way to get there.
func (s *Store) SetOrderStatus(id string, st order.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		o.Status = st
	}
}

func (s *Store) Users() user.Repository       { return &userRepo{s} }
func (s *Store) Products() product.Repository { return &productRepo{s} }
func (s *Store) Orders() order.Repository     { return &orderRepo{s} }

// ---------- users ----------

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ex := range r.s.users {
		if ex.Email == u.Email {
			return user.ErrAlreadyExist
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *userRepo) List(_ context.Context, limit, offset int) ([]user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]user.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset, 50), nil
}

func (r *userRepo) Update(_ context.Context, id string, p user.Patch) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (r *userRepo) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return false, nil
	}
	delete(r.s.users, id)
	return true, nil
}

// ---------- products ----------

type productRepo struct{ s *Store }

func (r *productRepo) Create(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.s.products[p.ID] = &cp
	r.s.seq[p.ID] = r.s.nextSeq
	r.s.nextSeq++
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *productRepo) List(_ context.Context, q product.Query) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	needle := strings.ToLower(q.Q)
	all := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if q.OnlyActive && !p.IsActive {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		all = append(all, *p)
	}
	s := r.s
	sort.Slice(all, func(i, j int) bool { return s.seq[all[i].ID] > s.seq[all[j].ID] })
	return page(all, q.Limit, q.Offset, 20), nil
}

func (r *productRepo) Update(_ context.Context, id string, patch product.Patch) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.ImageKey != nil {
		p.ImageKey = *patch.ImageKey
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

// Delete also nulls the product reference on existing order items, same as
// the schema's ON DELETE SET NULL.
func (r *productRepo) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return false, nil
	}
	delete(r.s.products, id)
	for oid, items := range r.s.items {
		for i := range items {
			if items[i].ProductID == id {
				items[i].ProductID = ""
			}
		}
		r.s.items[oid] = items
	}
	return true, nil
}

// ---------- orders ----------

type orderRepo struct{ s *Store }

// Place mirrors the transactional workflow: everything is validated and
// staged first, then applied, so a failing line leaves no stock touched.
func (r *orderRepo) Place(_ context.Context, userID string, lines []order.Line) (*order.Order, []order.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sorted := append([]order.Line(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	o := &order.Order{ID: uuid.NewString(), UserID: userID, Status: order.StatusPending}
	total := decimal.Zero
	staged := map[string]int{}
	items := make([]order.Item, 0, len(sorted))
	for _, ln := range sorted {
		p, ok := r.s.products[ln.ProductID]
		if !ok || !p.IsActive {
			return nil, nil, fmt.Errorf("%w: %s", order.ErrProductUnavailable, ln.ProductID)
		}
		st, seen := staged[p.ID]
		if !seen {
			st = p.Stock
		}
		if st < ln.Quantity {
			return nil, nil, fmt.Errorf("%w: product %s has %d, want %d",
				order.ErrInsufficientStock, ln.ProductID, st, ln.Quantity)
		}
		staged[p.ID] = st - ln.Quantity

		items = append(items, order.Item{
			ID:              uuid.NewString(),
			OrderID:         o.ID,
			ProductID:       ln.ProductID,
			Quantity:        ln.Quantity,
			PriceAtPurchase: p.Price,
		})
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, nil, fmt.Errorf("bad price for product %s: %w", ln.ProductID, err)
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}

	for pid, st := range staged {
		r.s.products[pid].Stock = st
	}
	now := time.Now().UTC()
	o.Total = total.String()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	r.s.orders[o.ID] = &cp
	r.s.items[o.ID] = append([]order.Item(nil), items...)
	r.s.seq[o.ID] = r.s.nextSeq
	r.s.nextSeq++
	return o, items, nil
}

func (r *orderRepo) Cancel(_ context.Context, id string) (*order.Order, []order.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil, order.ErrNotFound
	}
	if !o.Status.CanCancel() {
		return nil, nil, fmt.Errorf("%w: status is %s", order.ErrInvalidTransition, o.Status)
	}
	for _, it := range r.s.items[id] {
		if it.ProductID == "" {
			continue // product deleted, nothing to restock
		}
		if p, ok := r.s.products[it.ProductID]; ok {
			p.Stock += it.Quantity
		}
	}
	o.Status = order.StatusCancelled
	o.UpdatedAt = time.Now().UTC()

	cp := *o
	return &cp, append([]order.Item(nil), r.s.items[id]...), nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*order.Order, []order.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil, order.ErrNotFound
	}
	cp := *o
	return &cp, append([]order.Item(nil), r.s.items[id]...), nil
}

func (r *orderRepo) GetItems(_ context.Context, orderID string) ([]order.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[orderID]; !ok {
		return nil, order.ErrNotFound
	}
	return append([]order.Item(nil), r.s.items[orderID]...), nil
}

func (r *orderRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []order.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			all = append(all, *o)
		}
	}
	s := r.s
	sort.Slice(all, func(i, j int) bool { return s.seq[all[i].ID] > s.seq[all[j].ID] })
	return page(all, limit, offset, 20), nil
}

func (r *orderRepo) ListAll(_ context.Context, limit, offset int) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]order.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		all = append(all, *o)
	}
	s := r.s
	sort.Slice(all, func(i, j int) bool { return s.seq[all[i].ID] > s.seq[all[j].ID] })
	return page(all, limit, offset, 20), nil
}

func page[T any](all []T, limit, offset, defLimit int) []T {
	if limit <= 0 || limit > 100 {
		limit = defLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
