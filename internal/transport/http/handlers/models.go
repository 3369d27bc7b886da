package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the wire shape for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse builds an ErrorResponse carrying the request's trace id.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse is a simple acknowledgement payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse reports readiness with per-dependency check results.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// heartbeatRequest is the sub-device registration/heartbeat payload.
type heartbeatRequest struct {
	Label      string `json:"label"`
	PulseValue int64  `json:"pulse_value"`
}

// pulseRequest is the sub-device pulse-ingestion payload.
type pulseRequest struct {
	Pulses int `json:"pulses" binding:"required,min=1"`
}

// salesRangeResponse reports an aggregated total over a time range.
type salesRangeResponse struct {
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	TotalPesos  int64            `json:"total_pesos"`
	BySource    map[string]int64 `json:"by_source,omitempty"`
}
