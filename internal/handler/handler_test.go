package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/config"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/geocode"
	"github.com/flicky/spice-storefront/internal/middleware"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/notify"
	"github.com/flicky/spice-storefront/internal/ratelimit"
	"github.com/flicky/spice-storefront/internal/service"
)

const testSecret = "handler-test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := middleware.RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type stubReverser struct {
	addr *geocode.Address
	err  error
}

func (s stubReverser) Reverse(context.Context, float64, float64) (*geocode.Address, error) {
	return s.addr, s.err
}

type testServer struct {
	router *gin.Engine
	store  *memStore
}

func newTestServer(t *testing.T, orderLimit int) *testServer {
	t.Helper()
	store := newMemStore()
	log := zap.NewNop()

	formatter, err := notify.NewWhatsAppFormatter(config.WhatsAppConfig{
		BaseURL: "https://wa.me", StoreNumber: "9876543210", CountryCode: "+91", CurrencySymbol: "₹",
	})
	require.NoError(t, err)

	products := memProducts{store}
	carts := memCarts{store}
	orders := memOrders{store}

	productSvc := service.NewProductService(products, orders, nil, log)
	cartSvc := service.NewCartService(carts, products, log)
	orderSvc := service.NewOrderService(orders, carts, products,
		ratelimit.NewMemory(orderLimit, time.Minute), formatter, nil, nil,
		config.CheckoutConfig{OrderIDDigits: 10}, log)

	r := gin.New()
	r.Use(middleware.RequestID())
	RegisterRoutes(r.Group("/api/v1"), Handlers{
		Product: NewProductHandler(productSvc),
		Cart:    NewCartHandler(cartSvc),
		Order:   NewOrderHandler(orderSvc),
		Geocode: NewGeocodeHandler(stubReverser{err: geocode.ErrNoResult}),
	}, testSecret)

	health := NewHealthHandler(
		Check{Name: "store", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	return &testServer{router: r, store: store}
}

func (s *testServer) addProduct(name string, price int64, stock int) *model.Product {
	p := &model.Product{ID: uuid.New(), Name: name, Category: model.CategorySpices, Price: decimal.NewFromInt(price), Stock: stock, IsActive: true}
	s.store.products[p.ID] = p
	return p
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestCheckoutOverHTTP(t *testing.T) {
	s := newTestServer(t, 5)
	p := s.addProduct("Cardamom", 100, 5)
	userID := uuid.New()
	tok := token(t, userID, model.RoleUser)

	w := s.do(t, http.MethodPost, "/api/v1/cart", tok, dto.AddCartItemRequest{ProductID: p.ID, Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/cart/count", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":2}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/orders", tok, dto.CreateOrderRequest{DeliveryLocation: "12 MG Road, 560001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	var placed dto.PlaceOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))
	assert.Equal(t, "Order placed successfully", placed.Message)
	assert.Equal(t, model.OrderStatusPending, placed.Order.Status)
	assert.True(t, placed.Order.WhatsAppSent)
	assert.True(t, decimal.NewFromInt(200).Equal(placed.Order.TotalPrice))
	assert.True(t, strings.HasPrefix(placed.WhatsAppLink, "https://wa.me/919876543210?text="))
	assert.Equal(t, 3, s.store.products[p.ID].Stock)

	w = s.do(t, http.MethodGet, "/api/v1/cart/count", tok, nil)
	assert.JSONEq(t, `{"count":0}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+placed.Order.OrderID, tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+placed.Order.OrderID, token(t, uuid.New(), model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied", errorMessage(t, w))
}

func TestPlaceOrderRateLimited(t *testing.T) {
	s := newTestServer(t, 1)
	tok := token(t, uuid.New(), model.RoleUser)
	body := dto.CreateOrderRequest{DeliveryLocation: "somewhere"}

	w := s.do(t, http.MethodPost, "/api/v1/orders", tok, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cart is empty", errorMessage(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/orders", tok, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, errorMessage(t, w), "try again later")
}

func TestInsufficientStockOverHTTP(t *testing.T) {
	s := newTestServer(t, 5)
	p := s.addProduct("Cardamom", 100, 5)
	tok := token(t, uuid.New(), model.RoleUser)

	w := s.do(t, http.MethodPost, "/api/v1/cart", tok, dto.AddCartItemRequest{ProductID: p.ID, Quantity: 4})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart", tok, dto.AddCartItemRequest{ProductID: p.ID, Quantity: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "Only 1 more")
}

func TestCartItemRoutes(t *testing.T) {
	s := newTestServer(t, 5)
	p := s.addProduct("Cardamom", 100, 5)
	tok := token(t, uuid.New(), model.RoleUser)

	w := s.do(t, http.MethodPost, "/api/v1/cart", tok, dto.AddCartItemRequest{ProductID: p.ID, Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)

	qty := 3
	w = s.do(t, http.MethodPut, "/api/v1/cart/items/"+p.ID.String(), tok, dto.UpdateCartItemRequest{Quantity: &qty})
	require.Equal(t, http.StatusOK, w.Code)
	var cart dto.CartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cart))
	assert.Equal(t, 3, cart.TotalItems)

	w = s.do(t, http.MethodDelete, "/api/v1/cart/items/"+p.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cart))
	assert.Empty(t, cart.Items)

	w = s.do(t, http.MethodDelete, "/api/v1/cart/items/not-a-uuid", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, 5)
	tok := token(t, uuid.New(), model.RoleUser)

	w := s.do(t, http.MethodPost, "/api/v1/cart", tok, map[string]any{"productId": uuid.New(), "quantity": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "quantity: must be at least 1", errorMessage(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/orders", tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "deliveryLocation: is required", errorMessage(t, w))
}

func TestBlankDeliveryLocationOverHTTP(t *testing.T) {
	s := newTestServer(t, 1)
	p := s.addProduct("Cardamom", 100, 5)
	tok := token(t, uuid.New(), model.RoleUser)

	w := s.do(t, http.MethodPost, "/api/v1/cart", tok, dto.AddCartItemRequest{ProductID: p.ID, Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/api/v1/orders", tok, dto.CreateOrderRequest{DeliveryLocation: "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Delivery location is required", errorMessage(t, w))
	}
	assert.Empty(t, s.store.orders)
	assert.Equal(t, 5, s.store.products[p.ID].Stock)

	w = s.do(t, http.MethodPost, "/api/v1/orders", tok, dto.CreateOrderRequest{DeliveryLocation: "12 MG Road, 560001"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, 5)

	w := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/cart", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/stats", token(t, uuid.New(), model.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/stats", token(t, uuid.New(), model.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestServer(t, 5)
	s.store.orders["1234567890"] = &model.Order{ID: "1234567890", Status: model.OrderStatusPending}
	admin := token(t, uuid.New(), model.RoleAdmin)

	w := s.do(t, http.MethodPut, "/api/v1/orders/1234567890", admin, dto.UpdateOrderRequest{Status: "shipped"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot change order status from pending to shipped", errorMessage(t, w))

	w = s.do(t, http.MethodPut, "/api/v1/orders/1234567890", admin, dto.UpdateOrderRequest{Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status: is not a valid order status", errorMessage(t, w))

	w = s.do(t, http.MethodPut, "/api/v1/orders/1234567890", admin, dto.UpdateOrderRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.OrderStatusConfirmed, s.store.orders["1234567890"].Status)

	w = s.do(t, http.MethodPut, "/api/v1/orders/1234567890", admin, dto.UpdateOrderRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Order is already confirmed", errorMessage(t, w))
}

func TestRecommendationsOverHTTP(t *testing.T) {
	s := newTestServer(t, 5)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pepper := s.addProduct("Black Pepper", 100, 5)
	pepper.CreatedAt = base
	cloves := s.addProduct("Cloves", 100, 5)
	cloves.CreatedAt = base.Add(time.Hour)
	tea := s.addProduct("Nilgiri Tea", 100, 5)
	tea.Category = model.CategoryTea
	tea.CreatedAt = base.Add(2 * time.Hour)

	w := s.do(t, http.MethodGet, "/api/v1/products/recommendations?productId="+pepper.ID.String()+"&limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Products []dto.ProductResponse `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "Cloves", resp.Products[0].Name)
	assert.Equal(t, "Nilgiri Tea", resp.Products[1].Name)

	w = s.do(t, http.MethodGet, "/api/v1/products/recommendations", "garbage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Products, 3)

	w = s.do(t, http.MethodGet, "/api/v1/products/recommendations?productId=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/products/recommendations?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/products/recommendations?productId="+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnexpectedErrorIsHidden(t *testing.T) {
	s := newTestServer(t, 5)
	s.store.failGet = errors.New("connection reset by peer")

	w := s.do(t, http.MethodGet, "/api/v1/orders/1234567890", token(t, uuid.New(), model.RoleAdmin), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorMessage(t, w))
}

func TestGeocodeNoResult(t *testing.T) {
	s := newTestServer(t, 5)
	tok := token(t, uuid.New(), model.RoleUser)

	w := s.do(t, http.MethodGet, "/api/v1/geocode/reverse?lat=12.97&lon=77.59", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/geocode/reverse?lat=123&lon=77.59", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 5)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"error","redis":"unavailable"}`, w.Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))

	w = s.do(t, http.MethodGet, "/healthz", "", nil)
	_, err := uuid.Parse(w.Header().Get(middleware.RequestIDHeader))
	assert.NoError(t, err)
}
