package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/geocode"
)

type GeocodeHandler struct {
	reverser geocode.Reverser
}

func NewGeocodeHandler(reverser geocode.Reverser) *GeocodeHandler {
	return &GeocodeHandler{reverser: reverser}
}

func (h *GeocodeHandler) Reverse(c *gin.Context) {
	var q dto.ReverseGeocodeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	addr, err := h.reverser.Reverse(c.Request.Context(), *q.Lat, *q.Lon)
	if err != nil {
		if errors.Is(err, geocode.ErrNoResult) {
			respondError(c, apperr.New(apperr.NotFound, "No address found for this location"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReverseGeocodeResponse{
		Street:      addr.Street,
		City:        addr.City,
		State:       addr.State,
		Pincode:     addr.Pincode,
		Country:     addr.Country,
		DisplayName: addr.DisplayName,
	})
}
