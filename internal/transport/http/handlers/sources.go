package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/usecase"
)

// SourceHandler is the thin HTTP shim turning an authenticated sub-device
// callback into a Go-level call on SourceRegistry/CoinAggregator. It is
// not the portal server: it carries no portal HTML/JSON rendering, only
// the device-facing heartbeat/pulse contract.
type SourceHandler struct {
	sources    *usecase.SourceRegistry
	aggregator *usecase.CoinAggregator
	log        *zap.Logger
}

// NewSourceHandler constructs a source adapter handler.
func NewSourceHandler(sources *usecase.SourceRegistry, aggregator *usecase.CoinAggregator, log *zap.Logger) *SourceHandler {
	return &SourceHandler{sources: sources, aggregator: aggregator, log: log}
}

// RegisterRoutes binds the sub-device adapter routes to the given group.
// secretMiddleware verifies X-Sub-Vendo-Key before either handler runs.
func (h *SourceHandler) RegisterRoutes(r *gin.RouterGroup, secretMiddleware gin.HandlerFunc) {
	if r == nil {
		return
	}
	r.POST("/:source_id/heartbeat", secretMiddleware, h.Heartbeat)
	r.POST("/:source_id/pulse", secretMiddleware, h.Pulse)
}

// Heartbeat registers or refreshes a remote sub-device's last-seen stamp.
func (h *SourceHandler) Heartbeat(c *gin.Context) {
	sourceID := c.Param("source_id")

	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid heartbeat payload"))
		return
	}

	secret := c.GetHeader("X-Sub-Vendo-Key")
	if err := h.sources.RegisterRemote(c.Request.Context(), sourceID, req.Label, secret, req.PulseValue); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrInvalid, Status: http.StatusUnauthorized, Message: "invalid source secret"},
			{Err: usecase.ErrTransient, Status: http.StatusServiceUnavailable, Message: "authentication unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to register source")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "heartbeat accepted"})
}

// Pulse attributes count pulses from sourceID to the appliance's open coin
// session. The caller has already passed RequireSourceSecret, so the pulse
// value is looked up from the registry rather than trusted from the body.
func (h *SourceHandler) Pulse(c *gin.Context) {
	sourceID := c.Param("source_id")

	var req pulseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "pulses must be a positive integer"))
		return
	}

	src, err := h.sources.Get(c.Request.Context(), sourceID)
	if err != nil || src == nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "unknown source"))
		return
	}
	if !src.Enabled {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "source disabled"))
		return
	}

	h.aggregator.Pulse(sourceID, req.Pulses, src.PulseValue)
	c.JSON(http.StatusAccepted, MessageResponse{Message: "pulse accepted"})
}
