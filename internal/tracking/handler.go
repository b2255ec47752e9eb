package tracking

import (
	"net/http"
	"strconv"
	"time"

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
		locations := v1.Group("/locations")
		{
			locations.POST("", h.RecordLocation)
			locations.GET("/couriers/active", h.GetActiveCouriers)
			locations.GET("/couriers/:id/latest", h.GetLatest)
			locations.GET("/couriers/:id/history", h.GetHistory)
			locations.GET("/couriers/:id/range", h.GetByTimeRange)
			locations.GET("/orders/:id", h.GetByOrder)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// RecordLocation godoc
// @Summary      Record a courier location report
// @Tags         locations
// @Accept       json
// @Produce      json
// @Param        location  body      RecordLocationRequest  true  "Location report"
// @Success      201       {object}  Location
// @Failure      400       {object}  map[string]interface{}
// @Router       /locations [post]
func (h *Handler) RecordLocation(c *gin.Context) {
	var req RecordLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	loc, err := h.service.RecordLocation(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, loc)
}

// GetLatest godoc
// @Summary      Get the most recent location of a courier
// @Tags         locations
// @Produce      json
// @Param        id   path      int  true  "Courier ID"
// @Success      200  {object}  Location
// @Failure      404  {object}  map[string]interface{}
// @Router       /locations/couriers/{id}/latest [get]
func (h *Handler) GetLatest(c *gin.Context) {
	courierID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	loc, err := h.service.GetLatest(c.Request.Context(), courierID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, loc)
}

// GetHistory godoc
// @Summary      Get the location history of a courier, newest first
// @Tags         locations
// @Produce      json
// @Param        id     path      int  true   "Courier ID"
// @Param        limit  query     int  false  "Maximum results"
// @Success      200    {array}   Location
// @Router       /locations/couriers/{id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	courierID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	locations, err := h.service.GetHistory(c.Request.Context(), courierID, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, locations)
}

// GetByOrder godoc
// @Summary      Get every location reported for an order
// @Tags         locations
// @Produce      json
// @Param        id     path      int  true   "Order ID"
// @Param        limit  query     int  false  "Maximum results"
// @Success      200    {array}   Location
// @Router       /locations/orders/{id} [get]
func (h *Handler) GetByOrder(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	locations, err := h.service.GetByOrder(c.Request.Context(), orderID, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, locations)
}

// GetActiveCouriers godoc
// @Summary      List couriers that reported a location recently
// @Tags         locations
// @Produce      json
// @Success      200  {array}  int64
// @Router       /locations/couriers/active [get]
func (h *Handler) GetActiveCouriers(c *gin.Context) {
	ids, err := h.service.GetActiveCouriers(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, ids)
}

// GetByTimeRange godoc
// @Summary      Get the locations of a courier in a time window
// @Tags         locations
// @Produce      json
// @Param        id    path      int     true  "Courier ID"
// @Param        from  query     string  true  "RFC3339 start time"
// @Param        to    query     string  true  "RFC3339 end time"
// @Success      200   {array}   Location
// @Failure      400   {object}  map[string]interface{}
// @Router       /locations/couriers/{id}/range [get]
func (h *Handler) GetByTimeRange(c *gin.Context) {
	courierID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "from must be an RFC3339 timestamp")))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "to must be an RFC3339 timestamp")))
		return
	}

	locations, err := h.service.GetByTimeRange(c.Request.Context(), courierID, from, to)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, locations)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
