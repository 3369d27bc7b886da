package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coinvendo/gateway/internal/usecase"
)

// SalesHandler exposes read-only aggregation over the Sale ledger for
// operator dashboards, per §4.12. It never accepts writes: the ledger is
// append-only and populated exclusively by CreditApplier.
type SalesHandler struct {
	reports *usecase.SalesReportService
}

// NewSalesHandler constructs a sales reporting handler.
func NewSalesHandler(reports *usecase.SalesReportService) *SalesHandler {
	return &SalesHandler{reports: reports}
}

// RegisterRoutes binds the sales reporting routes to the given group.
func (h *SalesHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}
	r.GET("/range", h.Range)
	r.GET("/by-source", h.BySource)
}

// Range reports the total revenue within the [from, to) query window.
func (h *SalesHandler) Range(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	total, err := h.reports.RangeTotal(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to aggregate sales"))
		return
	}

	c.JSON(http.StatusOK, salesRangeResponse{From: from, To: to, TotalPesos: total})
}

// BySource reports the same window's revenue bucketed by source id.
func (h *SalesHandler) BySource(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	bySource, err := h.reports.BySource(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to aggregate sales"))
		return
	}

	var total int64
	for _, amount := range bySource {
		total += amount
	}

	c.JSON(http.StatusOK, salesRangeResponse{From: from, To: to, TotalPesos: total, BySource: bySource})
}

func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	fromRaw := c.Query("from")
	toRaw := c.Query("to")

	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "from must be an RFC3339 timestamp"))
		return time.Time{}, time.Time{}, false
	}

	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "to must be an RFC3339 timestamp"))
		return time.Time{}, time.Time{}, false
	}

	return from, to, true
}
