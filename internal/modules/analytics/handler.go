package analytics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"funding/internal/domain"
	"funding/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
	loggerf func(format string, args ...interface{})
}

func NewHandler(service *Service, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Handler{service: service, loggerf: loggerf}
}

// RegisterAdminRoutes expects a group already guarded by the admin role.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/analytics", h.List)
	rg.GET("/analytics/summary", h.Summary)
}

// RegisterInternalRoutes expects a group guarded by the internal token.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/analytics/rollup", h.Rollup)
}

type RollupRequest struct {
	// Date defaults to yesterday (UTC).
	Date     string `json:"date" example:"2026-03-01"`
	To       string `json:"to,omitempty" example:"2026-03-07"`
	Provider string `json:"provider,omitempty" example:"payu"`
}

func (h *Handler) List(c *gin.Context) {
	provider := domain.PaymentProvider(strings.ToLower(c.Query("provider")))
	rows, err := h.service.GetAnalytics(c.Request.Context(), c.Query("from"), c.Query("to"), provider)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"analytics": rows})
}

func (h *Handler) Summary(c *gin.Context) {
	days := defaultSummaryDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "days must be a positive integer")
			return
		}
		days = n
	}
	sum, err := h.service.GetSummary(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"summary": sum})
}

// Rollup generates rows for one day or a [date, to] range. Existing rows
// are left as they are.
func (h *Handler) Rollup(c *gin.Context) {
	var req RollupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	from := startOfDay(time.Now()).AddDate(0, 0, -1)
	if req.Date != "" {
		d, err := ParseDate(req.Date)
		if err != nil {
			writeError(c, err)
			return
		}
		from = d
	}
	to := from
	if req.To != "" {
		d, err := ParseDate(req.To)
		if err != nil {
			writeError(c, err)
			return
		}
		to = d
	}

	var providers []domain.PaymentProvider
	if req.Provider != "" {
		p := domain.PaymentProvider(strings.ToLower(strings.TrimSpace(req.Provider)))
		if !contains(h.service.Providers(), p) {
			response.Error(c, http.StatusBadRequest, "UNKNOWN_PROVIDER", "Unknown payment provider")
			return
		}
		providers = append(providers, p)
	}

	created, err := h.service.Backfill(c.Request.Context(), from, to, providers...)
	if err != nil {
		h.loggerf("level=error msg=analytics rollup request failed from=%s to=%s err=%v", from.Format(domain.AnalyticsDateLayout), to.Format(domain.AnalyticsDateLayout), err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"from":    from.Format(domain.AnalyticsDateLayout),
		"to":      to.Format(domain.AnalyticsDateLayout),
		"created": created,
	})
}

func contains(list []domain.PaymentProvider, p domain.PaymentProvider) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
