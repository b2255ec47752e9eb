package orders

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"logiflow/internal/logger"
	"logiflow/pkg/errors"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", h.CreateOrder)
			orders.GET("/:id", h.GetOrder)
			orders.PATCH("/:id", h.UpdateOrder)
			orders.POST("/:id/cancel", h.CancelOrder)
			orders.GET("", h.ListOrders)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// CreateOrder godoc
// @Summary      Create a new delivery order
// @Description  Register a new order; it always starts in the RECEIVED state
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        order  body      CreateOrderRequest  true  "Order data"
// @Success      201    {object}  Order
// @Failure      400    {object}  map[string]interface{}
// @Failure      500    {object}  map[string]interface{}
// @Router       /orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrder godoc
// @Summary      Get an order by ID
// @Tags         orders
// @Produce      json
// @Param        id   path      int  true  "Order ID"
// @Success      200  {object}  Order
// @Failure      404  {object}  map[string]interface{}
// @Router       /orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// UpdateOrder godoc
// @Summary      Partially update an order
// @Description  Apply the provided fields; unknown fields are ignored. Cancelled orders reject updates.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id     path      int                 true  "Order ID"
// @Param        patch  body      UpdateOrderRequest  true  "Fields to update"
// @Success      200    {object}  Order
// @Failure      400    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Failure      409    {object}  map[string]interface{}
// @Router       /orders/{id} [patch]
func (h *Handler) UpdateOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	order, err := h.service.UpdateOrder(c.Request.Context(), id, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder godoc
// @Summary      Cancel an order
// @Tags         orders
// @Produce      json
// @Param        id   path      int  true  "Order ID"
// @Success      200  {object}  Order
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /orders/{id}/cancel [post]
func (h *Handler) CancelOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	order, err := h.service.CancelOrder(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders godoc
// @Summary      List orders by customer or state
// @Tags         orders
// @Produce      json
// @Param        customer_id  query     int     false  "Customer ID"
// @Param        state        query     string  false  "Order state"
// @Param        limit        query     int     false  "Maximum results"
// @Success      200  {array}   Order
// @Failure      400  {object}  map[string]interface{}
// @Router       /orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	if customerParam := c.Query("customer_id"); customerParam != "" {
		customerID, err := parseID(customerParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
			return
		}
		orders, err := h.service.ListByCustomer(c.Request.Context(), customerID, limit)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
		return
	}

	if state := c.Query("state"); state != "" {
		orders, err := h.service.ListByState(c.Request.Context(), state, limit)
		if err != nil {
			h.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
		return
	}

	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
		errors.ErrValidation.WithDetail("message", "customer_id or state query parameter is required")))
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
