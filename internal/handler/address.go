package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/middleware"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/service"
)

type AddressHandler struct {
	svc *service.AddressService
}

func NewAddressHandler(svc *service.AddressService) *AddressHandler {
	return &AddressHandler{svc: svc}
}

func (h *AddressHandler) List(c *gin.Context) {
	addrs, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := dto.AddressListResponse{Addresses: make([]dto.AddressResponse, 0, len(addrs))}
	for i := range addrs {
		resp.Addresses = append(resp.Addresses, toAddressResponse(&addrs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AddressHandler) Create(c *gin.Context) {
	var req dto.CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	addr, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAddressResponse(addr))
}

func (h *AddressHandler) Update(c *gin.Context) {
	id, ok := parseUUIDParam(c, "addressId", "address")
	if !ok {
		return
	}
	var req dto.UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	addr, err := h.svc.Update(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAddressResponse(addr))
}

func (h *AddressHandler) Delete(c *gin.Context) {
	id, ok := parseUUIDParam(c, "addressId", "address")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AddressHandler) DeleteAll(c *gin.Context) {
	if err := h.svc.DeleteAll(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toAddressResponse(a *model.Address) dto.AddressResponse {
	return dto.AddressResponse{
		ID:        a.ID,
		Label:     a.Label,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		Country:   a.Country,
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
		IsDefault: a.IsDefault,
		Display:   a.Display(),
	}
}
