package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/config"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/notify"
	"github.com/flicky/spice-storefront/internal/ratelimit"
	"github.com/flicky/spice-storefront/internal/repository"
)

const (
	maxOrderIDAttempts = 10
	recentOrdersInStat = 10
)

var errOrderIDExhausted = errors.New("could not generate a unique order id")

// LinkFormatter turns a placed order into a customer hand-off link.
type LinkFormatter interface {
	Link(o notify.OrderSummary) string
}

type OrderPublisher interface {
	PublishOrderPlaced(ctx context.Context, evt model.OrderPlacedEvent) error
}

type CheckoutRecorder interface {
	CheckoutOutcome(outcome string)
}

// PlaceResult is a committed order with its hand-off link and the caller's
// remaining checkout quota.
type PlaceResult struct {
	Order *model.Order
	Link  string
	Quota apperr.Quota
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	limiter     ratelimit.Limiter
	formatter   LinkFormatter
	publisher   OrderPublisher
	recorder    CheckoutRecorder
	log         *zap.Logger

	idDigits int
	newID    func(digits int) (string, error)
	now      func() time.Time
}

// NewOrderService wires checkout. publisher and recorder may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	limiter ratelimit.Limiter,
	formatter LinkFormatter,
	publisher OrderPublisher,
	recorder CheckoutRecorder,
	cfg config.CheckoutConfig,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		limiter:     limiter,
		formatter:   formatter,
		publisher:   publisher,
		recorder:    recorder,
		log:         log,
		idDigits:    cfg.OrderIDDigits,
		newID:       NewOrderID,
		now:         time.Now,
	}
}

// NewOrderID returns a random numeric string of the given width with a
// non-zero leading digit.
func NewOrderID(digits int) (string, error) {
	if digits < 1 {
		return "", fmt.Errorf("order id width %d", digits)
	}
	var b strings.Builder
	b.Grow(digits)
	for i := 0; i < digits; i++ {
		lo, span := int64(0), int64(10)
		if i == 0 {
			lo, span = 1, 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		b.WriteByte(byte('0' + lo + n.Int64()))
	}
	return b.String(), nil
}

func (s *OrderService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.CheckoutOutcome(outcome)
	}
}

// Place converts the user's active cart into a pending order. Pre-checks run
// before any write; the order insert, stock decrements and cart rotation
// commit together.
func (s *OrderService) Place(ctx context.Context, userID uuid.UUID, deliveryLocation string) (*PlaceResult, error) {
	deliveryLocation = strings.TrimSpace(deliveryLocation)
	if deliveryLocation == "" {
		return nil, apperr.New(apperr.ValidationFailed, "Delivery location is required")
	}

	quota, err := s.admit(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart, err := s.cartRepo.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active cart: %w", err)
	}
	if cart == nil || len(cart.Items) == 0 {
		s.record("empty_cart")
		return nil, apperr.New(apperr.EmptyCart, "Cart is empty")
	}

	items, err := s.snapshot(ctx, cart)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &model.Order{
		CartID:           cart.ID,
		UserID:           userID,
		Items:            items,
		TotalPrice:       model.SumItems(items),
		DeliveryLocation: deliveryLocation,
		Status:           model.OrderStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	next := model.NewCart(userID, now)

	if err := s.commit(ctx, order, next); err != nil {
		return nil, err
	}

	link := s.formatter.Link(toSummary(order))
	if err := s.orderRepo.MarkWhatsAppSent(ctx, order.ID); err != nil {
		s.log.Error("mark whatsapp sent", zap.String("order_id", order.ID), zap.Error(err))
	} else {
		order.WhatsAppSent = true
	}

	s.publish(ctx, order)
	s.record("placed")
	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID.String()),
		zap.String("total", order.TotalPrice.String()),
		zap.Int("lines", len(order.Items)),
	)
	return &PlaceResult{Order: order, Link: link, Quota: quota}, nil
}

// admit consumes one unit of the caller's checkout budget. A limiter outage
// admits the request.
func (s *OrderService) admit(ctx context.Context, userID uuid.UUID) (apperr.Quota, error) {
	d, err := s.limiter.Allow(ctx, userID.String())
	if err != nil {
		s.log.Warn("rate limiter unavailable, admitting request", zap.Error(err))
		return apperr.Quota{}, nil
	}
	q := apperr.Quota{Limit: d.Limit, Remaining: d.Remaining, ResetAt: d.ResetAt}
	if !d.Allowed {
		s.record("rate_limited")
		return q, apperr.NewRateLimited("Too many order attempts. Please try again later.", q)
	}
	return q, nil
}

// snapshot re-validates every line against the live catalog and captures
// name and unit price.
func (s *OrderService) snapshot(ctx context.Context, cart *model.Cart) ([]model.OrderItem, error) {
	products, err := s.productRepo.GetByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		p := products[line.ProductID]
		if p == nil || !p.IsActive {
			name := line.ProductID.String()
			if p != nil {
				name = p.Name
			}
			s.record("unavailable")
			return nil, apperr.Newf(apperr.ProductUnavailable, "Product %s is no longer available", name)
		}
		if p.Stock < line.Quantity {
			s.record("insufficient_stock")
			return nil, apperr.Newf(apperr.InsufficientStock, "Only %d units of %s available", p.Stock, p.Name)
		}
		items = append(items, model.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			Price:     p.Price,
		})
	}
	return items, nil
}

// commit assigns a fresh order id and runs the placement transaction,
// regenerating the id on collision.
func (s *OrderService) commit(ctx context.Context, order *model.Order, next *model.Cart) error {
	for attempt := 0; attempt < maxOrderIDAttempts; attempt++ {
		id, err := s.newID(s.idDigits)
		if err != nil {
			return fmt.Errorf("generate order id: %w", err)
		}
		exists, err := s.orderRepo.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("check order id: %w", err)
		}
		if exists {
			continue
		}
		order.ID = id

		err = s.orderRepo.Place(ctx, order, next)
		if err == nil {
			return nil
		}

		var stockErr *repository.StockError
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			s.log.Info("order id collided at insert, regenerating", zap.String("order_id", id))
			continue
		case errors.As(err, &stockErr):
			s.record("insufficient_stock")
			return s.stockError(ctx, stockErr.ProductID)
		case errors.Is(err, repository.ErrCartNotActive):
			s.record("conflict")
			return apperr.New(apperr.Conflict, "Cart was already checked out")
		default:
			return fmt.Errorf("place order: %w", err)
		}
	}
	return errOrderIDExhausted
}

// stockError reports a decrement lost to a concurrent checkout, naming the
// product and its stock after rollback.
func (s *OrderService) stockError(ctx context.Context, productID uuid.UUID) error {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil || p == nil {
		return apperr.Newf(apperr.InsufficientStock, "Insufficient stock for product %s", productID)
	}
	return apperr.Newf(apperr.InsufficientStock, "Only %d units of %s available", p.Stock, p.Name)
}

func (s *OrderService) publish(ctx context.Context, order *model.Order) {
	if s.publisher == nil {
		return
	}
	evt := model.OrderPlacedEvent{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Items:    make([]model.OrderPlacedItem, 0, len(order.Items)),
		PlacedAt: order.CreatedAt,
	}
	for _, it := range order.Items {
		evt.Items = append(evt.Items, model.OrderPlacedItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := s.publisher.PublishOrderPlaced(ctx, evt); err != nil {
		s.log.Error("publish order placed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func toSummary(o *model.Order) notify.OrderSummary {
	lines := make([]notify.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, notify.Line{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return notify.OrderSummary{
		OrderID:          o.ID,
		CartID:           o.CartID.String(),
		Lines:            lines,
		Total:            o.TotalPrice,
		DeliveryLocation: o.DeliveryLocation,
	}
}

// Get returns an order visible to the caller: its owner or an admin.
func (s *OrderService) Get(ctx context.Context, orderID string, userID uuid.UUID, isAdmin bool) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, apperr.New(apperr.NotFound, "Order not found")
	}
	if !isAdmin && order.UserID != userID {
		return nil, apperr.New(apperr.Forbidden, "Access denied")
	}
	return order, nil
}

// List returns the caller's orders. Admins see every order and may filter by
// filterUserID.
func (s *OrderService) List(ctx context.Context, userID uuid.UUID, isAdmin bool, q dto.ListOrdersQuery) ([]model.Order, int, error) {
	f := model.OrderFilter{Page: q.Page, Limit: q.Limit}
	switch {
	case !isAdmin:
		f.UserID = &userID
	case q.UserID != "":
		id, err := uuid.Parse(q.UserID)
		if err != nil {
			return nil, 0, apperr.New(apperr.ValidationFailed, "userId: must be a valid UUID")
		}
		f.UserID = &id
	}

	orders, total, err := s.orderRepo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves an order along its lifecycle. Setting the current status
// again is rejected.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, apperr.New(apperr.NotFound, "Order not found")
	}
	if order.Status == status {
		return nil, apperr.Newf(apperr.ValidationFailed, "Order is already %s", status)
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, apperr.Newf(apperr.ValidationFailed, "Cannot change order status from %s to %s", order.Status, status)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Order not found")
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	order.Status = status
	order.UpdatedAt = s.now()
	s.log.Info("order status changed", zap.String("order_id", orderID), zap.String("status", string(status)))
	return order, nil
}

func (s *OrderService) Stats(ctx context.Context) (*model.OrderStats, error) {
	stats, err := s.orderRepo.Stats(ctx, recentOrdersInStat)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	return stats, nil
}
