package handler

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/repository"
)

// memStore is a minimal in-memory backing for the catalog, cart and order
// repositories used by the router tests.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*model.Product
	carts    map[uuid.UUID]*model.Cart
	orders   map[string]*model.Order
	failGet  error
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]*model.Product),
		carts:    make(map[uuid.UUID]*model.Cart),
		orders:   make(map[string]*model.Order),
	}
}

type memProducts struct{ s *memStore }
type memCarts struct{ s *memStore }
type memOrders struct{ s *memStore }

func (r memProducts) Create(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = uuid.New()
	cp := *p
	r.s.products[p.ID] = &cp
	return nil
}

func (r memProducts) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r memProducts) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, _ := r.GetByID(ctx, id); p != nil {
			out[id] = p
		}
	}
	return out, nil
}

func (r memProducts) List(context.Context, model.ProductFilter) ([]model.Product, int, error) {
	return nil, 0, nil
}

func (r memProducts) SuggestNames(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (r memProducts) CategoryCounts(context.Context) ([]model.CategoryCount, error) {
	return nil, nil
}

func (r memProducts) Related(_ context.Context, f model.RelatedFilter) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Product
	for _, p := range r.s.products {
		if p.IsActive && relatedMatch(p, f) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func relatedMatch(p *model.Product, f model.RelatedFilter) bool {
	if slices.Contains(f.Exclude, p.ID) {
		return false
	}
	if len(f.Categories) == 0 && len(f.Tags) == 0 {
		return true
	}
	if slices.Contains(f.Categories, p.Category) {
		return true
	}
	for _, t := range p.Tags {
		if slices.Contains(f.Tags, t) {
			return true
		}
	}
	return false
}

func (r memProducts) Update(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *p
	r.s.products[p.ID] = &cp
	return nil
}

func (r memProducts) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r memCarts) GetActive(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if c.UserID == userID && c.IsActive {
			cp := *c
			cp.Items = append([]model.CartItem{}, c.Items...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memCarts) Create(ctx context.Context, cart *model.Cart) error {
	if existing, _ := r.GetActive(ctx, cart.UserID); existing != nil {
		return repository.ErrDuplicateKey
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *cart
	r.s.carts[cart.ID] = &cp
	return nil
}

func (r memCarts) SaveItems(_ context.Context, cart *model.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.carts[cart.ID]
	if !ok || !stored.IsActive {
		return repository.ErrCartNotActive
	}
	stored.Items = append([]model.CartItem{}, cart.Items...)
	return nil
}

func (r memOrders) Exists(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.orders[id]
	return ok, nil
}

func (r memOrders) Place(_ context.Context, order *model.Order, next *model.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range order.Items {
		if p := r.s.products[it.ProductID]; p == nil || p.Stock < it.Quantity {
			return &repository.StockError{ProductID: it.ProductID}
		}
	}
	cart := r.s.carts[order.CartID]
	if cart == nil || !cart.IsActive {
		return repository.ErrCartNotActive
	}
	for _, it := range order.Items {
		r.s.products[it.ProductID].Stock -= it.Quantity
	}
	cart.IsActive = false
	cp := *next
	r.s.carts[next.ID] = &cp
	o := *order
	r.s.orders[order.ID] = &o
	return nil
}

func (r memOrders) GetByID(_ context.Context, id string) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failGet != nil {
		return nil, r.s.failGet
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r memOrders) List(_ context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Order
	for _, o := range r.s.orders {
		if f.UserID == nil || o.UserID == *f.UserID {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (r memOrders) UpdateStatus(_ context.Context, id string, status model.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	return nil
}

func (r memOrders) MarkWhatsAppSent(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.orders[id]; ok {
		o.WhatsAppSent = true
	}
	return nil
}

func (r memOrders) Stats(context.Context, int) (*model.OrderStats, error) {
	return &model.OrderStats{}, nil
}

func (r memOrders) PopularProductIDs(_ context.Context, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	totals := map[uuid.UUID]int{}
	for _, o := range r.s.orders {
		for _, it := range o.Items {
			totals[it.ProductID] += it.Quantity
		}
	}
	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if totals[ids[i]] != totals[ids[j]] {
			return totals[ids[i]] > totals[ids[j]]
		}
		return ids[i].String() < ids[j].String()
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r memOrders) PurchasedProductIDs(_ context.Context, userID uuid.UUID, recentOrders int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []*model.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			mine = append(mine, o)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	if len(mine) > recentOrders {
		mine = mine[:recentOrders]
	}
	var ids []uuid.UUID
	for _, o := range mine {
		for _, it := range o.Items {
			if !slices.Contains(ids, it.ProductID) {
				ids = append(ids, it.ProductID)
			}
		}
	}
	return ids, nil
}
