package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/flicky/spice-storefront/internal/middleware"
)

type Handlers struct {
	Auth    *AuthHandler
	Product *ProductHandler
	Cart    *CartHandler
	Order   *OrderHandler
	Address *AddressHandler
	Geocode *GeocodeHandler
	Upload  *UploadHandler
}

// RegisterRoutes mounts the storefront API on api. Nil handlers are skipped.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, jwtSecret string) {
	auth := middleware.AuthMiddleware(jwtSecret)
	optionalAuth := middleware.OptionalAuth(jwtSecret)
	admin := middleware.AdminOnly()

	if h.Auth != nil {
		authGroup := api.Group("/auth")
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
	}

	if h.Product != nil {
		products := api.Group("/products")
		products.GET("", h.Product.List)
		products.GET("/search", h.Product.Search)
		products.GET("/categories", h.Product.Categories)
		products.GET("/recommendations", optionalAuth, h.Product.Recommendations)
		products.GET("/:id", h.Product.GetByID)
		products.POST("", auth, admin, h.Product.Create)
		products.PUT("/:id", auth, admin, h.Product.Update)
		products.DELETE("/:id", auth, admin, h.Product.Delete)
	}

	if h.Cart != nil {
		cart := api.Group("/cart", auth)
		cart.GET("", h.Cart.GetCart)
		cart.GET("/count", h.Cart.Count)
		cart.POST("", h.Cart.AddItem)
		cart.DELETE("", h.Cart.Clear)
		cart.PUT("/items/:productId", h.Cart.UpdateItem)
		cart.DELETE("/items/:productId", h.Cart.DeleteItem)
	}

	if h.Order != nil {
		orders := api.Group("/orders", auth)
		orders.POST("", h.Order.CreateOrder)
		orders.GET("", h.Order.ListOrders)
		orders.GET("/stats", admin, h.Order.Stats)
		orders.GET("/:orderId", h.Order.GetOrder)
		orders.PUT("/:orderId", admin, h.Order.UpdateOrder)
	}

	if h.Address != nil {
		addresses := api.Group("/addresses", auth)
		addresses.GET("", h.Address.List)
		addresses.POST("", h.Address.Create)
		addresses.DELETE("", h.Address.DeleteAll)
		addresses.PUT("/:addressId", h.Address.Update)
		addresses.DELETE("/:addressId", h.Address.Delete)
	}

	if h.Geocode != nil {
		api.GET("/geocode/reverse", auth, h.Geocode.Reverse)
	}

	if h.Upload != nil {
		api.POST("/uploads/presign", auth, admin, h.Upload.Presign)
	}
}
