package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Password  string
	Phone     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Category string

const (
	CategorySpices    Category = "spices"
	CategoryDryFruits Category = "dry-fruits"
	CategoryTea       Category = "tea"
)

var Categories = []Category{CategorySpices, CategoryDryFruits, CategoryTea}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// DisplayName turns "dry-fruits" into "Dry Fruits".
func (c Category) DisplayName() string {
	words := strings.Split(string(c), "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

type ProductImage struct {
	URL       string
	PublicID  string
	Alt       string
	IsPrimary bool
}

type NutritionFacts struct {
	CaloriesPer100g *float64
	Protein         string
	Carbs           string
	Fat             string
	Fiber           string
}

// ProductVariant is a display-only pack size. Checkout always uses the
// product's own price and stock.
type ProductVariant struct {
	Weight string
	Price  decimal.Decimal
	Stock  int
	SKU    string
}

// ProductDetails holds the descriptive catalog attributes shown on the
// product page.
type ProductDetails struct {
	DetailedDescription string
	Origin              string
	ShelfLife           string
	StorageInstructions string
	UsageInstructions   string
	Certifications      []string
	HealthBenefits      []string
	NutritionFacts      *NutritionFacts
	Variants            []ProductVariant
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    Category
	Price       decimal.Decimal
	Stock       int
	IsActive    bool
	Images      []ProductImage
	Tags        []string
	Details     ProductDetails
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PrimaryImage returns the primary image URL, or "" when there are no images.
func (p *Product) PrimaryImage() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// NormalizeImages keeps exactly one primary image when images exist: the
// first image flagged primary wins, and the first image is promoted when none is.
func NormalizeImages(images []ProductImage) []ProductImage {
	if len(images) == 0 {
		return images
	}
	out := make([]ProductImage, len(images))
	copy(out, images)
	primary := -1
	for i := range out {
		if out[i].IsPrimary && primary == -1 {
			primary = i
			continue
		}
		out[i].IsPrimary = false
	}
	if primary == -1 {
		out[0].IsPrimary = true
	}
	return out
}

// NormalizeTags trims, lower-cases and de-duplicates tags, dropping empties.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type ProductSort string

const (
	SortCreatedAt ProductSort = "createdAt"
	SortPrice     ProductSort = "price"
	SortName      ProductSort = "name"
)

type ProductFilter struct {
	Category   Category
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Search     string
	ActiveOnly bool
	Sort       ProductSort
	Desc       bool
	Page       int
	Limit      int
}

func (f ProductFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// RelatedFilter selects active products, newest first, that are in one of
// Categories or share a tag with Tags. With both empty every active product
// matches.
type RelatedFilter struct {
	Categories []Category
	Tags       []string
	Exclude    []uuid.UUID
	Limit      int
}

type CategoryCount struct {
	Category Category
	Count    int
}

type CartItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCart(userID uuid.UUID, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     []CartItem{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Find returns the index of productID's line, or -1.
func (c *Cart) Find(productID uuid.UUID) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var nextStatus = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusConfirmed,
	OrderStatusConfirmed:  OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo allows one step forward along the lifecycle, or
// cancellation from any non-terminal status.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return nextStatus[s] == to
}

// OrderItem is the immutable snapshot of a cart line at placement time.
type OrderItem struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID               string
	CartID           uuid.UUID
	UserID           uuid.UUID
	Items            []OrderItem
	TotalPrice       decimal.Decimal
	DeliveryLocation string
	Status           OrderStatus
	WhatsAppSent     bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

type OrderFilter struct {
	UserID *uuid.UUID
	Page   int
	Limit  int
}

func (f OrderFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type StatusStat struct {
	Status     OrderStatus
	Count      int
	TotalValue decimal.Decimal
}

type OrderStats struct {
	ByStatus     []StatusStat
	TotalOrders  int
	TotalRevenue decimal.Decimal
	Recent       []Order
}

type Address struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Label     string
	Street    string
	City      string
	State     string
	Pincode   string
	Country   string
	Latitude  *float64
	Longitude *float64
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SameLocation reports whether two addresses share street and pincode,
// which is how duplicates are detected.
func (a *Address) SameLocation(street, pincode string) bool {
	return strings.EqualFold(strings.TrimSpace(a.Street), strings.TrimSpace(street)) &&
		strings.TrimSpace(a.Pincode) == strings.TrimSpace(pincode)
}

// Display renders the address as a single line.
func (a *Address) Display() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	s := strings.Join(parts, ", ")
	if a.Pincode != "" {
		s += " - " + a.Pincode
	}
	return s
}

// OrderPlacedEvent is published after a checkout commits.
type OrderPlacedEvent struct {
	OrderID  string            `json:"order_id"`
	UserID   uuid.UUID         `json:"user_id"`
	Items    []OrderPlacedItem `json:"items"`
	PlacedAt time.Time         `json:"placed_at"`
}

type OrderPlacedItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}
