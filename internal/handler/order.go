package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/middleware"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.orderService.Place(c.Request.Context(), middleware.GetUserID(c), req.DeliveryLocation)
	if err != nil {
		respondError(c, err)
		return
	}

	setQuotaHeaders(c, res.Quota)
	c.JSON(http.StatusCreated, dto.PlaceOrderResponse{
		Message:      "Order placed successfully",
		Order:        toOrderResponse(res.Order),
		WhatsAppLink: res.Link,
	})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	var q dto.ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	orders, total, err := h.orderService.List(c.Request.Context(), middleware.GetUserID(c), middleware.IsAdmin(c), q)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}

	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Pagination: dto.NewPagination(q.Page, q.Limit, total)})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("orderId"), middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req dto.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("orderId"), model.OrderStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) Stats(c *gin.Context) {
	stats, err := h.orderService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.OrderStatsResponse{
		Stats:        make([]dto.StatusStatResponse, 0, len(stats.ByStatus)),
		TotalOrders:  stats.TotalOrders,
		TotalRevenue: stats.TotalRevenue,
		RecentOrders: make([]dto.OrderResponse, 0, len(stats.Recent)),
	}
	for _, s := range stats.ByStatus {
		resp.Stats = append(resp.Stats, dto.StatusStatResponse{Status: s.Status, Count: s.Count, TotalValue: s.TotalValue})
	}
	for i := range stats.Recent {
		resp.RecentOrders = append(resp.RecentOrders, toOrderResponse(&stats.Recent[i]))
	}

	c.JSON(http.StatusOK, resp)
}

func toOrderResponse(o *model.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, dto.OrderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return dto.OrderResponse{
		OrderID:          o.ID,
		CartID:           o.CartID,
		UserID:           o.UserID,
		Items:            items,
		TotalPrice:       o.TotalPrice,
		DeliveryLocation: o.DeliveryLocation,
		Status:           o.Status,
		WhatsAppSent:     o.WhatsAppSent,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}
