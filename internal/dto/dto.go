package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/spice-storefront/internal/model"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// --- Auth ---

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
	Role  string    `json:"role"`
}

// --- Product ---

type ProductImage struct {
	URL       string `json:"url" binding:"required,url"`
	PublicID  string `json:"publicId" binding:"required"`
	Alt       string `json:"alt,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

type NutritionFacts struct {
	CaloriesPer100g *float64 `json:"caloriesPer100g,omitempty" binding:"omitempty,min=0"`
	Protein         string   `json:"protein,omitempty"`
	Carbs           string   `json:"carbs,omitempty"`
	Fat             string   `json:"fat,omitempty"`
	Fiber           string   `json:"fiber,omitempty"`
}

type ProductVariant struct {
	Weight string          `json:"weight" binding:"required"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock" binding:"min=0"`
	SKU    string          `json:"sku,omitempty"`
}

type ProductDetails struct {
	DetailedDescription string           `json:"detailedDescription,omitempty"`
	Origin              string           `json:"origin,omitempty"`
	ShelfLife           string           `json:"shelfLife,omitempty"`
	StorageInstructions string           `json:"storageInstructions,omitempty"`
	UsageInstructions   string           `json:"usageInstructions,omitempty"`
	Certifications      []string         `json:"certifications,omitempty"`
	HealthBenefits      []string         `json:"healthBenefits,omitempty"`
	NutritionFacts      *NutritionFacts  `json:"nutritionFacts,omitempty"`
	Variants            []ProductVariant `json:"variants,omitempty" binding:"omitempty,dive"`
}

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required,max=200"`
	Description string          `json:"description" binding:"required"`
	Category    string          `json:"category" binding:"required,category"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock" binding:"required,min=0"`
	Images      []ProductImage  `json:"images" binding:"required,min=1,dive"`
	Tags        []string        `json:"tags"`
	IsActive    *bool           `json:"isActive"`
	Details     *ProductDetails `json:"details"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,max=200"`
	Description *string          `json:"description"`
	Category    *string          `json:"category" binding:"omitempty,category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	Images      []ProductImage   `json:"images" binding:"omitempty,dive"`
	Tags        []string         `json:"tags"`
	IsActive    *bool            `json:"isActive"`
	// Details replaces the stored details as a whole when present.
	Details *ProductDetails `json:"details"`
}

type ListProductsQuery struct {
	Category string `form:"category" binding:"omitempty,category"`
	MinPrice string `form:"minPrice" binding:"omitempty,numeric"`
	MaxPrice string `form:"maxPrice" binding:"omitempty,numeric"`
	Search   string `form:"search"`
	Sort     string `form:"sort,default=createdAt" binding:"oneof=createdAt price name"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=12" binding:"min=1,max=100"`
}

type ProductResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Category     model.Category  `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	IsActive     bool            `json:"isActive"`
	Images       []ProductImage  `json:"images"`
	PrimaryImage string          `json:"primaryImage,omitempty"`
	Tags         []string        `json:"tags"`
	Details      ProductDetails  `json:"details"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type ProductListResponse struct {
	Products   []ProductResponse `json:"products"`
	Pagination Pagination        `json:"pagination"`
}

type RecommendationsQuery struct {
	ProductID string `form:"productId"`
	Limit     int    `form:"limit,default=8" binding:"min=1,max=50"`
}

type SearchResponse struct {
	Suggestions []string          `json:"suggestions"`
	Products    []ProductResponse `json:"products"`
}

type CategoryResponse struct {
	ID    model.Category `json:"id"`
	Name  string         `json:"name"`
	Count int            `json:"count"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

type CartResponse struct {
	ID         uuid.UUID          `json:"cartId"`
	Items      []CartItemResponse `json:"items"`
	TotalItems int                `json:"totalItems"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
}

type CartItemResponse struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartCountResponse struct {
	Count int `json:"count"`
}

// --- Order ---

type CreateOrderRequest struct {
	DeliveryLocation string `json:"deliveryLocation" binding:"required,max=500"`
}

type ListOrdersQuery struct {
	UserID string `form:"userId" binding:"omitempty,uuid"`
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=10" binding:"min=1,max=100"`
}

type UpdateOrderRequest struct {
	Status string `json:"status" binding:"required,orderstatus"`
}

type OrderResponse struct {
	OrderID          string              `json:"orderId"`
	CartID           uuid.UUID           `json:"cartId"`
	UserID           uuid.UUID           `json:"userId"`
	Items            []OrderItemResponse `json:"products"`
	TotalPrice       decimal.Decimal     `json:"totalPrice"`
	DeliveryLocation string              `json:"deliveryLocation"`
	Status           model.OrderStatus   `json:"status"`
	WhatsAppSent     bool                `json:"whatsappSent"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

type OrderItemResponse struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type PlaceOrderResponse struct {
	Message      string        `json:"message"`
	Order        OrderResponse `json:"order"`
	WhatsAppLink string        `json:"whatsappLink"`
}

type OrderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	Pagination Pagination      `json:"pagination"`
}

type StatusStatResponse struct {
	Status     model.OrderStatus `json:"status"`
	Count      int               `json:"count"`
	TotalValue decimal.Decimal   `json:"totalValue"`
}

type OrderStatsResponse struct {
	Stats        []StatusStatResponse `json:"statusStats"`
	TotalOrders  int                  `json:"totalOrders"`
	TotalRevenue decimal.Decimal      `json:"totalRevenue"`
	RecentOrders []OrderResponse      `json:"recentOrders"`
}

// --- Address ---

type CreateAddressRequest struct {
	Label     string   `json:"label" binding:"omitempty,max=50"`
	Street    string   `json:"street" binding:"required,max=300"`
	City      string   `json:"city" binding:"required,max=100"`
	State     string   `json:"state" binding:"required,max=100"`
	Pincode   string   `json:"pincode" binding:"required,pincode"`
	Country   string   `json:"country" binding:"omitempty,max=100"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"omitempty,longitude"`
	IsDefault bool     `json:"isDefault"`
}

type UpdateAddressRequest struct {
	Label     *string  `json:"label" binding:"omitempty,max=50"`
	Street    *string  `json:"street" binding:"omitempty,min=1,max=300"`
	City      *string  `json:"city" binding:"omitempty,min=1,max=100"`
	State     *string  `json:"state" binding:"omitempty,min=1,max=100"`
	Pincode   *string  `json:"pincode" binding:"omitempty,pincode"`
	Country   *string  `json:"country" binding:"omitempty,max=100"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"omitempty,longitude"`
	IsDefault *bool    `json:"isDefault"`
}

type AddressResponse struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Pincode   string    `json:"pincode"`
	Country   string    `json:"country"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	IsDefault bool      `json:"isDefault"`
	Display   string    `json:"display"`
}

type AddressListResponse struct {
	Addresses []AddressResponse `json:"addresses"`
}

// --- Geocoding ---

type ReverseGeocodeQuery struct {
	Lat *float64 `form:"lat" binding:"required,latitude"`
	Lon *float64 `form:"lon" binding:"required,longitude"`
}

type ReverseGeocodeResponse struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	Country     string `json:"country"`
	DisplayName string `json:"displayName"`
}

// --- Uploads ---

type PresignRequest struct {
	FileName    string `json:"fileName" binding:"required,max=200"`
	ContentType string `json:"contentType" binding:"required,oneof=image/jpeg image/png image/webp image/gif"`
}

type PresignResponse struct {
	UploadURL string    `json:"uploadUrl"`
	PublicURL string    `json:"publicUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}
