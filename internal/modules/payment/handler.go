package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"funding/internal/domain"
	"funding/internal/pkg/response"
	"funding/internal/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 1 << 20

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

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/donations/:id/payments", h.CreatePayment)
	rg.GET("/donations/:id/payments", h.ListDonationPayments)
	rg.GET("/payments/:id", h.GetPayment)
	rg.POST("/payments/:id/refresh", h.RefreshPayment)
	rg.POST("/payments/:id/cancel", h.CancelPayment)
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/webhook/:provider", h.Webhook)
	rg.GET("/payments/fees", h.CalculateFee)
	rg.GET("/payments/options", h.PaymentOptions)
	rg.GET("/payments/providers/:provider/methods", h.SupportedMethods)
	rg.GET("/payments/providers/health", h.ProvidersHealth)
}

// RegisterAdminRoutes expects a group already guarded by the admin role.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/:id/status", h.UpdateStatus)
	rg.POST("/payments/:id/refund", h.Refund)
}

// Webhook godoc
// @Summary      Provider notification
// @Description  Verifies the provider signature and applies the reported payment status (idempotent)
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        provider path string true "stripe or payu"
// @Router       /payments/webhook/{provider} [post]
func (h *Handler) Webhook(c *gin.Context) {
	provider, err := ParseProvider(c.Param("provider"))
	if err != nil {
		response.Error(c, http.StatusNotFound, "UNKNOWN_PROVIDER", "Unknown payment provider")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_BODY", "Unreadable body")
		return
	}
	signature := signatureHeader(c, provider)

	err = h.service.HandleWebhook(c.Request.Context(), provider, payload, signature)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		response.Error(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature")
		return
	case errors.Is(err, ErrUnknownProvider):
		response.Error(c, http.StatusNotFound, "UNKNOWN_PROVIDER", "Payment provider is not enabled")
		return
	case err != nil:
		// accepted; the provider must not keep redelivering what we cannot process
		h.loggerf("level=error msg=webhook processing failed provider=%s body=%s err=%v", provider, string(payload), err)
	}
	response.Ack(c, http.StatusOK, "received")
}

func signatureHeader(c *gin.Context, provider domain.PaymentProvider) string {
	switch provider {
	case domain.ProviderStripe:
		return c.GetHeader("Stripe-Signature")
	case domain.ProviderPayU:
		return c.GetHeader("OpenPayu-Signature")
	}
	return ""
}

// CreatePayment godoc
// @Summary      Start a payment attempt
// @Description  Opens a checkout session with the chosen (or default) provider for a pending donation
// @Tags         Payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int true "Donation ID"
// @Param        body body CreatePaymentRequest true "Payment payload"
// @Router       /donations/{id}/payments [post]
func (h *Handler) CreatePayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if m, ok := domain.ParsePaymentMethod(string(req.Method)); ok {
		req.Method = m
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid payment request", errs)
		return
	}
	if req.Provider != "" {
		p, err := ParseProvider(string(req.Provider))
		if err != nil {
			response.Error(c, http.StatusBadRequest, "UNKNOWN_PROVIDER", err.Error())
			return
		}
		req.Provider = p
	}
	req.DonationID = id
	req.DonorUsername = c.GetString("username")
	req.IsAdmin = isAdmin(c)
	req.ClientIP = c.ClientIP()

	p, err := h.service.CreatePayment(c.Request.Context(), req)
	if err != nil {
		h.loggerf("level=error msg=create payment request failed donation_id=%d provider=%s err=%v", id, req.Provider, err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"payment": p})
}

func (h *Handler) ListDonationPayments(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	out, err := h.service.ListDonationPayments(c.Request.Context(), id, c.GetString("username"), isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payments": out})
}

func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.service.GetPayment(c.Request.Context(), id, c.GetString("username"), isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

func (h *Handler) RefreshPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.service.RefreshPaymentStatus(c.Request.Context(), id, c.GetString("username"), isAdmin(c))
	if err != nil {
		h.loggerf("level=error msg=refresh payment failed payment_id=%d err=%v", id, err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

func (h *Handler) CancelPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.service.CancelPayment(c.Request.Context(), id, c.GetString("username"), isAdmin(c))
	if err != nil {
		h.loggerf("level=error msg=cancel payment failed payment_id=%d err=%v", id, err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	status, valid := domain.ParsePaymentStatus(string(req.Status))
	if !valid {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown payment status")
		return
	}
	p, err := h.service.UpdatePaymentStatus(c.Request.Context(), id, status)
	if err != nil {
		h.loggerf("level=error msg=manual status update failed payment_id=%d status=%s err=%v", id, status, err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

func (h *Handler) Refund(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	p, err := h.service.RefundPayment(c.Request.Context(), id, req.Amount)
	if err != nil {
		h.loggerf("level=error msg=refund failed payment_id=%d amount=%s err=%v", id, req.Amount.String(), err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

func (h *Handler) CalculateFee(c *gin.Context) {
	var q FeeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "amount and provider are required")
		return
	}
	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid amount")
		return
	}
	provider, err := ParseProvider(q.Provider)
	if err != nil {
		writeError(c, err)
		return
	}
	currency, ok := domain.ParseCurrency(q.Currency)
	if !ok {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unsupported currency")
		return
	}
	calc, err := h.service.CalculatePaymentFee(amount, provider, currency)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"fee": calc})
}

func (h *Handler) PaymentOptions(c *gin.Context) {
	var q OptionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "amount is required")
		return
	}
	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid amount")
		return
	}
	options, err := h.service.GetAvailablePaymentOptions(amount, q.Country)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"options": options})
}

func (h *Handler) SupportedMethods(c *gin.Context) {
	provider, err := ParseProvider(c.Param("provider"))
	if err != nil {
		writeError(c, err)
		return
	}
	methods, err := h.service.GetSupportedPaymentMethods(provider)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"provider": provider, "methods": methods})
}

func (h *Handler) ProvidersHealth(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"providers": h.service.GetPaymentProvidersHealth()})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid id")
		return 0, false
	}
	return id, true
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == "admin"
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrUnsupportedCurrency), errors.Is(err, ErrUnsupportedMethod):
		response.Error(c, http.StatusBadRequest, "UNSUPPORTED", err.Error())
	case errors.Is(err, ErrUnknownProvider):
		response.Error(c, http.StatusNotFound, "UNKNOWN_PROVIDER", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, domain.ErrPaymentNotAllowed):
		response.Error(c, http.StatusConflict, "PAYMENT_NOT_ALLOWED", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Error(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		response.Error(c, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Payment provider is unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
