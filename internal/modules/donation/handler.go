package donation

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"funding/internal/domain"
	"funding/internal/pkg/response"
	"funding/internal/pkg/validator"

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

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/donations", h.CreateDonation)
	rg.GET("/donations/mine", h.ListMine)
	rg.GET("/donations/:id", h.GetDonation)
	rg.POST("/donations/:id/cancel", h.CancelDonation)
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/shelters/:id/donations", h.ListShelterDonations)
	rg.GET("/pets/:id/donations", h.ListPetDonations)
	rg.GET("/fundraisers/:id/donations", h.ListFundraiserDonations)
}

// CreateDonation godoc
// @Summary      Create donation
// @Description  Registers a pending money or in-kind donation for a shelter
// @Tags         Donations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Router       /donations [post]
func (h *Handler) CreateDonation(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid donation", errs)
		return
	}
	req.DonorUsername = c.GetString("username")

	d, err := h.service.CreateDonation(c.Request.Context(), req)
	if err != nil {
		h.loggerf("level=error msg=create donation failed donor=%s shelter_id=%d err=%v", req.DonorUsername, req.ShelterID, err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"donation": d})
}

func (h *Handler) GetDonation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.service.GetDonation(c.Request.Context(), id, c.GetString("username"), isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"donation": d})
}

func (h *Handler) ListMine(c *gin.Context) {
	var q ListQuery
	_ = c.ShouldBindQuery(&q)
	out, err := h.service.ListDonorDonations(c.Request.Context(), c.GetString("username"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"donations": out})
}

func (h *Handler) CancelDonation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.service.CancelDonation(c.Request.Context(), id, c.GetString("username"), isAdmin(c))
	if err != nil {
		h.loggerf("level=error msg=cancel donation failed donation_id=%d err=%v", id, err)
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"donation": d})
}

func (h *Handler) ListShelterDonations(c *gin.Context) {
	h.listBy(c, h.service.ListShelterDonations)
}

func (h *Handler) ListPetDonations(c *gin.Context) {
	h.listBy(c, h.service.ListPetDonations)
}

func (h *Handler) ListFundraiserDonations(c *gin.Context) {
	h.listBy(c, h.service.ListFundraiserDonations)
}

func (h *Handler) listBy(c *gin.Context, fetch func(ctx context.Context, id int64, q ListQuery) ([]domain.Donation, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var q ListQuery
	_ = c.ShouldBindQuery(&q)
	out, err := fetch(c.Request.Context(), id, q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"donations": out})
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
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Error(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
