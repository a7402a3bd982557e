// Package memory is an in-process implementation of repository.Store for
// tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

// memState is copied on InTx and restored when fn fails, so tests observe
// rollbacks the way PostgreSQL would apply them.
type memState struct {
	products     map[string]domain.Product
	carts        map[string]domain.Cart
	reservations []domain.StockReservation
	orders       map[string]domain.Order
	items        []domain.OrderItem
	events       map[string]domain.WebhookEvent
	requests     []domain.ReviewRequest
	reviews      []domain.Review
}

func (s *memState) clone() *memState {
	return &memState{
		products:     maps.Clone(s.products),
		carts:        maps.Clone(s.carts),
		reservations: slices.Clone(s.reservations),
		orders:       maps.Clone(s.orders),
		items:        slices.Clone(s.items),
		events:       maps.Clone(s.events),
		requests:     slices.Clone(s.requests),
		reviews:      slices.Clone(s.reviews),
	}
}

// Store is an in-process repository.Store. It implements the conditional
// writes of the PostgreSQL repositories so service and handler tests can
// exercise them without a database.
type Store struct {
	mu    sync.Mutex
	state *memState

	saveConflicts int
	failApply     error
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{state: &memState{
		products: map[string]domain.Product{},
		carts:    map[string]domain.Cart{},
		orders:   map[string]domain.Order{},
		events:   map[string]domain.WebhookEvent{},
	}}
}

func (s *Store) Products() repository.ProductRepository             { return memProducts{s} }
func (s *Store) Carts() repository.CartRepository                   { return memCarts{s} }
func (s *Store) Inventory() repository.InventoryRepository          { return memInventory{s} }
func (s *Store) Orders() repository.OrderRepository                 { return memOrders{s} }
func (s *Store) WebhookEvents() repository.WebhookEventRepository   { return memEvents{s} }
func (s *Store) ReviewRequests() repository.ReviewRequestRepository { return memRequests{s} }
func (s *Store) Reviews() repository.ReviewRepository               { return memReviews{s} }

func (s *Store) InTx(_ context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	saved := s.state.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.state = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

// --- Seeding and inspection ---

// AddProduct stores p as is. Currency defaults to COP.
func (s *Store) AddProduct(p domain.Product) {
	if p.Currency == "" {
		p.Currency = "COP"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

// Product returns the stored product id.
func (s *Store) Product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id]
}

// PutOrder stores o, replacing any order with the same id.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = o
}

// Order returns the stored order row without items.
func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

// OrderCount is the number of order rows.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

// AddItems appends order items without the uniqueness check.
func (s *Store) AddItems(items ...domain.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.items = append(s.state.items, items...)
}

// ItemsOf returns the items of orderID.
func (s *Store) ItemsOf(orderID string) []domain.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OrderItem
	for _, it := range s.state.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

// ReservationsOf returns the reservations of orderID.
func (s *Store) ReservationsOf(orderID string) []domain.StockReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StockReservation
	for _, r := range s.state.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out
}

// PutCart stores c as the saved cart of c.UserID.
func (s *Store) PutCart(c domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.carts[c.UserID] = c
}

// EventList returns every recorded webhook event.
func (s *Store) EventList() []domain.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.state.events))
}

// Event returns the event recorded under (provider, key).
func (s *Store) Event(provider, key string) (domain.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.events[eventKey(provider, key)]
	return e, ok
}

// ReviewRequestList returns every review request in insertion order.
func (s *Store) ReviewRequestList() []domain.ReviewRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.requests)
}

// ReviewList returns every review in insertion order.
func (s *Store) ReviewList() []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.reviews)
}

// PutReviews replaces the stored reviews.
func (s *Store) PutReviews(reviews ...domain.Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reviews = slices.Clone(reviews)
}

// FailNextSaves makes the next n cart saves fail with ErrConflict.
func (s *Store) FailNextSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveConflicts = n
}

// FailApply makes ApplyPayment return err until it is called with nil.
func (s *Store) FailApply(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failApply = err
}

type memProducts struct{ s *Store }

func (r memProducts) Create(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.products[p.ID] = *p
	return nil
}

func (r memProducts) Update(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.products[p.ID]; !ok {
		return apperrors.NotFound("product", p.ID)
	}
	r.s.state.products[p.ID] = *p
	return nil
}

func (r memProducts) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (r memProducts) GetBySlug(_ context.Context, slug string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.state.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("product", slug)
}

func (r memProducts) GetMany(_ context.Context, ids []string) ([]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Product
	for _, id := range ids {
		if p, ok := r.s.state.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProducts) List(_ context.Context, f domain.ProductFilter) ([]domain.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Product
	for _, p := range r.s.state.products {
		if (p.Active || f.IncludeInactive) && (f.Category == "" || p.Category == f.Category) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, len(out), nil
}

func (r memProducts) SetStock(_ context.Context, id string, stock int) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	if stock < p.Reserved {
		return nil, apperrors.Conflict("stock below reserved")
	}
	p.Stock = stock
	r.s.state.products[id] = p
	return &p, nil
}

type memCarts struct{ s *Store }

func (r memCarts) Get(_ context.Context, userID string) (*domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.state.carts[userID]
	if !ok {
		return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (r memCarts) Save(_ context.Context, cart *domain.Cart, _ string, expected int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.saveConflicts > 0 {
		r.s.saveConflicts--
		return apperrors.Conflict("cart was modified concurrently")
	}
	if r.s.state.carts[cart.UserID].Version != expected {
		return apperrors.Conflict("cart was modified concurrently")
	}
	cart.Version = expected + 1
	stored := *cart
	stored.Items = slices.Clone(cart.Items)
	r.s.state.carts[cart.UserID] = stored
	return nil
}

type memInventory struct{ s *Store }

func (r memInventory) Reserve(_ context.Context, orderID, productID string, qty int, expiresAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.products[productID]
	if !ok || !p.Active || p.Available() < qty {
		return false, nil
	}
	p.Reserved += qty
	r.s.state.products[productID] = p
	r.s.state.reservations = append(r.s.state.reservations, domain.StockReservation{
		OrderID: orderID, ProductID: productID, Quantity: qty,
		Status: domain.ReservationActive, ExpiresAt: expiresAt,
	})
	return true, nil
}

func (r memInventory) settle(orderID, status string, sold bool) int {
	n := 0
	for i, res := range r.s.state.reservations {
		if res.OrderID != orderID || res.Status != domain.ReservationActive {
			continue
		}
		p := r.s.state.products[res.ProductID]
		p.Reserved = max(p.Reserved-res.Quantity, 0)
		if sold {
			p.Stock -= res.Quantity
		}
		r.s.state.products[res.ProductID] = p
		r.s.state.reservations[i].Status = status
		n++
	}
	return n
}

func (r memInventory) Confirm(_ context.Context, orderID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.settle(orderID, domain.ReservationConfirmed, true), nil
}

func (r memInventory) Release(_ context.Context, orderID, status string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.settle(orderID, status, false), nil
}

func (r memInventory) DecrementStock(_ context.Context, productID string, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.state.products[productID]; ok {
		p.Stock = max(p.Stock-qty, 0)
		r.s.state.products[productID] = p
	}
	return nil
}

func (r memInventory) ExpiredOrders(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, res := range r.s.state.reservations {
		if res.Status == domain.ReservationActive && !res.ExpiresAt.After(now) && !slices.Contains(ids, res.OrderID) {
			ids = append(ids, res.OrderID)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memOrders struct{ s *Store }

func (r memOrders) Create(_ context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.orders[o.ID]; ok {
		return apperrors.AlreadyExists("order", "id", o.ID)
	}
	r.s.state.orders[o.ID] = newOrderRow(o)
	return nil
}

// newOrderRow mirrors the cart_snapshot column default.
func newOrderRow(o *domain.Order) domain.Order {
	row := *o
	if row.CartSnapshot == nil {
		row.CartSnapshot = []domain.CartItem{}
	}
	return row
}

func (r memOrders) get(id string) (*domain.Order, error) {
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	o.Items = nil
	for _, it := range r.s.state.items {
		if it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	return &o, nil
}

func (r memOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r memOrders) ApplyPayment(_ context.Context, u repository.PaymentUpdate) (*repository.AppliedPayment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failApply != nil {
		return nil, r.s.failApply
	}
	cur, ok := r.s.state.orders[u.Order.ID]
	if !ok {
		r.s.state.orders[u.Order.ID] = newOrderRow(u.Order)
		o, _ := r.get(u.Order.ID)
		return &repository.AppliedPayment{Order: o, Applied: true, Inserted: true}, nil
	}
	prev := cur.PaymentStatus
	if !slices.Contains(u.AllowedFrom, prev) {
		o, _ := r.get(cur.ID)
		return &repository.AppliedPayment{Order: o, Previous: prev}, nil
	}
	cur.PaymentStatus = u.Order.PaymentStatus
	if cur.Status == domain.OrderStatusPending || cur.Status == domain.OrderStatusError {
		cur.Status = u.Order.Status
	}
	if u.Order.TransactionID != "" {
		cur.TransactionID = u.Order.TransactionID
	}
	if cur.PaidAt == nil {
		cur.PaidAt = u.Order.PaidAt
	}
	r.s.state.orders[cur.ID] = cur
	o, _ := r.get(cur.ID)
	return &repository.AppliedPayment{Order: o, Applied: true, Previous: prev}, nil
}

func (r memOrders) InsertItems(_ context.Context, items []domain.OrderItem) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, it := range items {
		dup := slices.ContainsFunc(r.s.state.items, func(x domain.OrderItem) bool {
			return x.OrderID == it.OrderID && x.ProductID == it.ProductID
		})
		if !dup {
			r.s.state.items = append(r.s.state.items, it)
			n++
		}
	}
	return n, nil
}

func (r memOrders) List(_ context.Context, f domain.OrderFilter) ([]domain.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Order
	for _, o := range r.s.state.orders {
		if (f.Status == "" || o.Status == f.Status) && (f.PaymentStatus == "" || o.PaymentStatus == f.PaymentStatus) {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (r memOrders) UpdateStatus(_ context.Context, id string, from []string, target string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	if !slices.Contains(from, o.Status) {
		return nil, apperrors.InvalidTransition(o.Status, target)
	}
	o.Status = target
	r.s.state.orders[id] = o
	return r.get(id)
}

type memEvents struct{ s *Store }

func eventKey(provider, key string) string { return provider + "/" + key }

func (r memEvents) Record(_ context.Context, e *domain.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := eventKey(e.Provider, e.IdempotencyKey)
	if _, ok := r.s.state.events[k]; ok {
		return false, nil
	}
	r.s.state.events[k] = *e
	return true, nil
}

func (r memEvents) GetByKey(_ context.Context, provider, key string) (*domain.WebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.state.events[eventKey(provider, key)]
	if !ok {
		return nil, apperrors.NotFound("webhook event", key)
	}
	return &e, nil
}

func (r memEvents) SetOutcome(_ context.Context, id string, outcome domain.TransitionOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, e := range r.s.state.events {
		if e.ID == id {
			e.Outcome = outcome
			r.s.state.events[k] = e
			return nil
		}
	}
	return apperrors.NotFound("webhook event", id)
}

func (r memEvents) List(_ context.Context, orderID string, _, _ int) ([]domain.WebhookEvent, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.WebhookEvent
	for _, e := range r.s.state.events {
		if orderID == "" || e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

type memRequests struct{ s *Store }

func (r memRequests) Create(_ context.Context, rr *domain.ReviewRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.requests = append(r.s.state.requests, *rr)
	return nil
}

func (r memRequests) ExpireOutstanding(_ context.Context, orderID string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for i, rr := range r.s.state.requests {
		if rr.OrderID == orderID && rr.Usable(now) {
			r.s.state.requests[i].ExpiresAt = now
			n++
		}
	}
	return n, nil
}

func (r memRequests) Consume(_ context.Context, tokenHash, orderID string, now time.Time) (*domain.ReviewRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, rr := range r.s.state.requests {
		if rr.TokenHash == tokenHash && rr.OrderID == orderID && rr.Usable(now) {
			usedAt := now
			r.s.state.requests[i].Used = true
			r.s.state.requests[i].UsedAt = &usedAt
			out := r.s.state.requests[i]
			return &out, nil
		}
	}
	return nil, apperrors.NotFound("review request", orderID)
}

type memReviews struct{ s *Store }

func (r memReviews) Create(_ context.Context, rv *domain.Review) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.state.reviews {
		if x.OrderID == rv.OrderID && x.ProductID == rv.ProductID {
			return false, nil
		}
	}
	r.s.state.reviews = append(r.s.state.reviews, *rv)
	return true, nil
}

func (r memReviews) ListByProduct(_ context.Context, productID string, _, _ int) ([]domain.Review, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Review
	for _, x := range r.s.state.reviews {
		if x.ProductID == productID {
			out = append(out, x)
		}
	}
	return out, len(out), nil
}

func (r memReviews) Summary(_ context.Context, productID string) (*domain.ReviewSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := &domain.ReviewSummary{ProductID: productID}
	total := 0
	for _, x := range r.s.state.reviews {
		if x.ProductID == productID {
			total += x.Rating
			sum.TotalCount++
		}
	}
	if sum.TotalCount > 0 {
		sum.AverageRating = float64(total) / float64(sum.TotalCount)
	}
	return sum, nil
}

