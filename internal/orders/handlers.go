package orders

import (
	"errors"
	"strconv"

	"github.com/brokerpilot/api/internal/ledger"
	"github.com/brokerpilot/api/pkg/response"
	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for the order-management endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order management.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListOrdersHandler handles GET requests for the order list. Sort column
// and direction come from the "sort" and "dir" query parameters.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.service.List(c.Query("sort"), c.Query("dir"))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, list)
	}
}

// CreateOrderHandler handles POST requests to create a new place order.
// Invalid input is rejected before any broker interaction.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.Create(req)
		if err != nil {
			h.renderError(c, err)
			return
		}
		response.Success(c, view)
	}
}

// UpdateOrderHandler handles PUT requests to change an order's price and
// quantity, optionally cancelling the live broker order first.
func (h *GinHandlers) UpdateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.orderID(c)
		if !ok {
			return
		}

		var req UpdateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		view, err := h.service.Update(c.Request.Context(), id, req)
		if err != nil {
			h.renderError(c, err)
			return
		}
		response.Success(c, view)
	}
}

// DeleteOrderHandler handles DELETE requests for a single order.
func (h *GinHandlers) DeleteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.orderID(c)
		if !ok {
			return
		}

		view, err := h.service.Delete(c.Request.Context(), id)
		if err != nil {
			h.renderError(c, err)
			return
		}
		response.Success(c, view)
	}
}

// DeleteExecutedHandler handles DELETE requests to purge executed orders.
func (h *GinHandlers) DeleteExecutedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.service.DeleteExecuted()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"deleted": n})
	}
}

func (h *GinHandlers) orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return 0, false
	}
	return uint(id), true
}

func (h *GinHandlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		response.ValidationFailed(c, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		response.NotFound(c, "Order not found")
	case errors.Is(err, ledger.ErrStaleOrder):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
