package notifications

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
		notifications := v1.Group("/notifications")
		{
			notifications.GET("/recipient/:recipient", h.ListByRecipient)
			notifications.GET("/status/:status", h.ListByStatus)
			notifications.POST("/retry-failed", h.RetryFailed)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// ListByRecipient godoc
// @Summary      List notifications for a recipient, newest first
// @Tags         notifications
// @Produce      json
// @Param        recipient  path      string  true   "Recipient identifier"
// @Param        limit      query     int     false  "Maximum results"
// @Success      200        {array}   Notification
// @Router       /notifications/recipient/{recipient} [get]
func (h *Handler) ListByRecipient(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.service.ListByRecipient(c.Request.Context(), c.Param("recipient"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListByStatus godoc
// @Summary      List notifications in a given status
// @Tags         notifications
// @Produce      json
// @Param        status  path      string  true   "PENDING, SENT or FAILED"
// @Param        limit   query     int     false  "Maximum results"
// @Success      200     {array}   Notification
// @Failure      400     {object}  map[string]interface{}
// @Router       /notifications/status/{status} [get]
func (h *Handler) ListByStatus(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.service.ListByStatus(c.Request.Context(), c.Param("status"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RetryFailed godoc
// @Summary      Reset failed notifications and retry delivery
// @Tags         notifications
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /notifications/retry-failed [post]
func (h *Handler) RetryFailed(c *gin.Context) {
	count, err := h.service.RetryFailed(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"retried": count})
}
