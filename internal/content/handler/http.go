package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
)

const (
	purgeTokenHeader = "X-Webhook-Token"
	purgeSource      = "webhook"
)

// ContentService is the part of service.ContentService the HTTP surface uses.
type ContentService interface {
	ResolveExternalEndpoint(ctx context.Context, path string) (string, error)
	GetContent(ctx context.Context, path string) (map[string]any, error)
	PurgeCache(ctx context.Context, source string) error
	CheckHealth(ctx context.Context) error
}

type HTTPHandler struct {
	service    ContentService
	logger     *zap.Logger
	purgeToken string
}

func NewHTTPHandler(service ContentService, logger *zap.Logger, purgeToken string) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		service:    service,
		logger:     logger,
		purgeToken: strings.TrimSpace(purgeToken),
	}
}

func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.POST("/internal/cache/purge", h.PurgeCache)

	api := router.Group("/api/v1")
	{
		api.GET("/resolve", h.Resolve)
		api.GET("/content", h.GetContent)
	}
}

// Health answers with the current unix time while the upstream API is
// reachable.
func (h *HTTPHandler) Health(c *gin.Context) {
	if err := h.service.CheckHealth(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	c.String(http.StatusOK, strconv.FormatInt(time.Now().Unix(), 10))
}

func (h *HTTPHandler) PurgeCache(c *gin.Context) {
	if h.purgeToken == "" {
		c.String(http.StatusInternalServerError, "WEBSITE_CACHE_PURGE_TOKEN is not configured")
		return
	}

	provided := c.GetHeader(purgeTokenHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.purgeToken)) != 1 {
		err := domain.Forbidden("invalid webhook token")
		h.logger.Warn("Rejected cache purge",
			zap.Error(err), zap.String("client_ip", c.ClientIP()))
		c.String(http.StatusUnauthorized, "Invalid webhook token")
		return
	}

	if err := h.service.PurgeCache(c.Request.Context(), purgeSource); err != nil {
		h.logger.Error("Failed to purge cache", zap.Error(err))
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.String(http.StatusOK, "Cache purged")
}

func (h *HTTPHandler) Resolve(c *gin.Context) {
	path := c.Query("path")

	endpoint, err := h.service.ResolveExternalEndpoint(c.Request.Context(), path)
	if err != nil {
		h.writeError(c, err, zap.String("path", path))
		return
	}

	c.JSON(http.StatusOK, gin.H{"path": path, "endpoint": endpoint})
}

func (h *HTTPHandler) GetContent(c *gin.Context) {
	path := c.Query("path")

	document, err := h.service.GetContent(c.Request.Context(), path)
	if err != nil {
		h.writeError(c, err, zap.String("path", path))
		return
	}

	c.JSON(http.StatusOK, document)
}

func (h *HTTPHandler) writeError(c *gin.Context, err error, fields ...zap.Field) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	fields = append(fields, zap.Error(err), zap.String("kind", kind.String()))
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Warn("Request rejected", fields...)
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

// StatusFor maps an error kind onto an HTTP status code.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindForbidden:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
