package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"entry-service/internal/service"
	"entry-service/internal/store"
	"entry-service/internal/util"
	"entry-service/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	entryService *service.EntryService
	verifier     *webhook.Verifier
	router       *webhook.Router
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(entryService *service.EntryService, verifier *webhook.Verifier, router *webhook.Router) *Handler {
	return &Handler{
		entryService: entryService,
		verifier:     verifier,
		router:       router,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payments", h.paymentWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/entries", h.submitEntry)
		v1.GET("/entries/:id", h.getEntry)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// paymentWebhook receives processor notifications. The raw body must be
// captured before any parsing: the signature covers the exact bytes as
// delivered. 200 means processed or safely ignored; any other status asks
// the processor to redeliver.
func (h *Handler) paymentWebhook(c *gin.Context) {
	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable request body"})
		return
	}

	event, err := h.verifier.Verify(rawBody, c.GetHeader(webhook.SignatureHeader))
	if errors.Is(err, webhook.ErrInvalidSignature) {
		util.WebhookVerificationFailures.Inc()
		h.logger.Warn("Rejected webhook delivery with invalid signature",
			zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}
	if err != nil {
		h.logger.Warn("Rejected malformed webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed payload"})
		return
	}

	if err := h.router.Dispatch(c.Request.Context(), event); err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Kind.String(), "error").Inc()
		h.logger.Error("Webhook event processing failed",
			zap.String("event_id", event.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		return
	}

	util.WebhookEventsTotal.WithLabelValues(event.Kind.String(), "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// submitEntry handles entry submission
func (h *Handler) submitEntry(c *gin.Context) {
	var req service.SubmitEntryRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.entryService.SubmitEntry(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to submit entry",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getEntry handles get entry by ID
func (h *Handler) getEntry(c *gin.Context) {
	entry, payments, err := h.entryService.GetEntry(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load entry",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry":    entry,
		"payments": payments,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
