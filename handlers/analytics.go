package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"loopfan-backend/apperrors"
	"loopfan-backend/models"
)

type AnalyticsStore interface {
	CreatorAnalytics(ctx context.Context, address string) (*models.CreatorAnalytics, error)
	FanAnalytics(ctx context.Context, address string) (*models.FanAnalytics, error)
	PlatformAnalytics(ctx context.Context) (*models.PlatformAnalytics, error)
}

// AnalyticsHandler recomputes every report from the ledger on each request.
type AnalyticsHandler struct {
	analytics AnalyticsStore
}

func NewAnalyticsHandler(analytics AnalyticsStore) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

func (h *AnalyticsHandler) Creator(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}

	report, err := h.analytics.CreatorAnalytics(c.Request.Context(), addr)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get creator analytics", err))
		return
	}
	respond(c, http.StatusOK, report)
}

func (h *AnalyticsHandler) Fan(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}

	report, err := h.analytics.FanAnalytics(c.Request.Context(), addr)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get fan analytics", err))
		return
	}
	respond(c, http.StatusOK, report)
}

func (h *AnalyticsHandler) Platform(c *gin.Context) {
	report, err := h.analytics.PlatformAnalytics(c.Request.Context())
	if err != nil {
		fail(c, apperrors.Internal("Failed to get platform analytics", err))
		return
	}
	respond(c, http.StatusOK, report)
}
