package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/spice-storefront/internal/model"
)

// Lookups return (nil, nil) when the record does not exist.

var (
	// ErrDuplicateKey reports a unique constraint violation: an order id
	// collision, a second active cart or a second default address.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrCartNotActive means the cart was checked out by a concurrent request.
	ErrCartNotActive = errors.New("cart is no longer active")
	ErrNotFound      = errors.New("record not found")
)

// StockError is returned when a conditional stock decrement matches no row.
type StockError struct {
	ProductID uuid.UUID
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error)
	List(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error)
	SuggestNames(ctx context.Context, query string, limit int) ([]string, error)
	CategoryCounts(ctx context.Context) ([]model.CategoryCount, error)
	Related(ctx context.Context, f model.RelatedFilter) ([]model.Product, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type CartRepository interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// Create returns ErrDuplicateKey when the user already has an active cart.
	Create(ctx context.Context, cart *model.Cart) error
	// SaveItems replaces the line items of an active cart.
	SaveItems(ctx context.Context, cart *model.Cart) error
}

type OrderRepository interface {
	Exists(ctx context.Context, orderID string) (bool, error)
	// Place inserts the order, decrements stock for every line, deactivates
	// the source cart and inserts next as the new active cart, all in one
	// transaction. It returns ErrDuplicateKey on an order id collision,
	// *StockError when a decrement fails and ErrCartNotActive when the cart
	// was already rotated.
	Place(ctx context.Context, order *model.Order, next *model.Cart) error
	GetByID(ctx context.Context, orderID string) (*model.Order, error)
	List(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error)
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	MarkWhatsAppSent(ctx context.Context, orderID string) error
	Stats(ctx context.Context, recent int) (*model.OrderStats, error)
	// PopularProductIDs ranks products by total ordered quantity.
	PopularProductIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	// PurchasedProductIDs lists the distinct products in the user's most
	// recent orders.
	PurchasedProductIDs(ctx context.Context, userID uuid.UUID, recentOrders int) ([]uuid.UUID, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type AddressRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Address, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Address, error)
	// Create and Update clear the default flag on siblings first when the
	// address is marked default.
	Create(ctx context.Context, addr *model.Address) error
	Update(ctx context.Context, addr *model.Address) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

// Store bundles the repositories of one storage driver.
type Store struct {
	Products  ProductRepository
	Carts     CartRepository
	Orders    OrderRepository
	Users     UserRepository
	Addresses AddressRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}
