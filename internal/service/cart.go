package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/repository"
)

// cartAttempts bounds retries when a concurrent request creates or rotates
// the user's active cart underneath us.
const cartAttempts = 3

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	log         *zap.Logger
	now         func() time.Time
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, log *zap.Logger) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo, log: log, now: time.Now}
}

// GetOrCreateActive returns the user's active cart, creating an empty one
// when none exists. A lost creation race is resolved by re-reading.
func (s *CartService) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	for attempt := 0; attempt < cartAttempts; attempt++ {
		cart, err := s.cartRepo.GetActive(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get active cart: %w", err)
		}
		if cart != nil {
			return cart, nil
		}

		cart = model.NewCart(userID, s.now())
		err = s.cartRepo.Create(ctx, cart)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, fmt.Errorf("create cart: %w", err)
		}
		s.log.Debug("active cart created concurrently, re-reading", zap.String("user_id", userID.String()))
	}
	return nil, fmt.Errorf("get or create cart for %s: too much contention", userID)
}

func (s *CartService) Get(ctx context.Context, userID uuid.UUID) (*dto.CartResponse, error) {
	cart, err := s.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// Count returns the summed quantity of the active cart, 0 when there is none.
func (s *CartService) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	cart, err := s.cartRepo.GetActive(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get active cart: %w", err)
	}
	if cart == nil {
		return 0, nil
	}
	return cart.TotalQuantity(), nil
}

// AddItem merges quantity into the product's line, appending a new line
// when there is none.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*dto.CartResponse, error) {
	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(cart *model.Cart) error {
		idx := cart.Find(productID)
		existing := 0
		if idx >= 0 {
			existing = cart.Items[idx].Quantity
		}
		if existing+quantity > product.Stock {
			if existing > 0 {
				return apperr.Newf(apperr.InsufficientStock,
					"Cannot add %d more. Only %d more available", quantity, max(product.Stock-existing, 0))
			}
			return apperr.Newf(apperr.InsufficientStock, "Only %d items available in stock", product.Stock)
		}
		if idx >= 0 {
			cart.Items[idx].Quantity += quantity
		} else {
			cart.Items = append(cart.Items, model.CartItem{ProductID: productID, Quantity: quantity})
		}
		return nil
	})
}

// SetQuantity overwrites a line's quantity; 0 removes the line.
func (s *CartService) SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*dto.CartResponse, error) {
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, apperr.Newf(apperr.InsufficientStock, "Only %d items available in stock", product.Stock)
	}

	return s.mutate(ctx, userID, func(cart *model.Cart) error {
		idx := cart.Find(productID)
		if idx < 0 {
			return apperr.New(apperr.NotFound, "Item not found in cart")
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*dto.CartResponse, error) {
	return s.mutate(ctx, userID, func(cart *model.Cart) error {
		if idx := cart.Find(productID); idx >= 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		}
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) (*dto.CartResponse, error) {
	return s.mutate(ctx, userID, func(cart *model.Cart) error {
		cart.Items = []model.CartItem{}
		return nil
	})
}

func (s *CartService) activeProduct(ctx context.Context, productID uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return nil, apperr.New(apperr.NotFound, "Product not found")
	}
	return product, nil
}

// mutate applies fn to the active cart and persists it immediately. If the
// cart is checked out concurrently the change is replayed on the new cart.
func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, fn func(*model.Cart) error) (*dto.CartResponse, error) {
	for attempt := 0; attempt < cartAttempts; attempt++ {
		cart, err := s.GetOrCreateActive(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := fn(cart); err != nil {
			return nil, err
		}
		cart.UpdatedAt = s.now()

		err = s.cartRepo.SaveItems(ctx, cart)
		if err == nil {
			return s.view(ctx, cart)
		}
		if !errors.Is(err, repository.ErrCartNotActive) {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		s.log.Info("cart rotated during update, retrying", zap.String("cart_id", cart.ID.String()))
	}
	return nil, apperr.New(apperr.Conflict, "Cart changed while updating, please retry")
}

// view resolves every line to the product's current name, price, image and
// stock. Lines whose product is gone or inactive are left out.
func (s *CartService) view(ctx context.Context, cart *model.Cart) (*dto.CartResponse, error) {
	resp := &dto.CartResponse{ID: cart.ID, Items: []dto.CartItemResponse{}, TotalPrice: decimal.Zero}
	if len(cart.Items) == 0 {
		return resp, nil
	}

	products, err := s.productRepo.GetByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	for _, it := range cart.Items {
		p, ok := products[it.ProductID]
		if !ok || p == nil || !p.IsActive {
			continue
		}
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		resp.Items = append(resp.Items, dto.CartItemResponse{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.PrimaryImage(),
			Stock:     p.Stock,
			Quantity:  it.Quantity,
			Subtotal:  subtotal,
		})
		resp.TotalItems += it.Quantity
		resp.TotalPrice = resp.TotalPrice.Add(subtotal)
	}
	return resp, nil
}
