package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/logger"
	"github.com/flicky/spice-storefront/internal/validation"
)

// respondError maps err to its HTTP status and writes {"error": message}.
// Unexpected errors are logged and their detail is withheld from the caller.
func respondError(c *gin.Context, err error) {
	e := apperr.As(err)
	if e.Quota != nil {
		setQuotaHeaders(c, *e.Quota)
	}
	if e.Kind == apperr.Unexpected {
		logger.FromGin(c).Error("request failed", zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(e.Kind.Status(), dto.ErrorResponse{Error: e.Message})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: validation.FirstMessage(err)})
}

func setQuotaHeaders(c *gin.Context, q apperr.Quota) {
	if q.Limit == 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(q.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(q.ResetAt.Unix(), 10))
}

func parseUUIDParam(c *gin.Context, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid " + what + " ID"})
		return uuid.Nil, false
	}
	return id, true
}
