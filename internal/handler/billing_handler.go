package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mgiraudo/instituto-api/internal/service"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
	"github.com/mgiraudo/instituto-api/pkg/response"
)

// BillingHandler exposes the tuition, rent and commission endpoints.
type BillingHandler struct {
	tuition    *service.TuitionService
	rent       *service.RentService
	commission *service.CommissionService
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(tuition *service.TuitionService, rent *service.RentService, commission *service.CommissionService) *BillingHandler {
	return &BillingHandler{tuition: tuition, rent: rent, commission: commission}
}

// registerCommissionRequest identifies the professor settling the period.
type registerCommissionRequest struct {
	ProfessorID string `json:"professor_id" binding:"required"`
}

// TuitionPreview godoc
// @Summary Preview next tuition installment
// @Tags Billing
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Param surcharge query bool false "Apply delinquency surcharge"
// @Success 200 {object} response.Envelope
// @Router /billing/tuition/{enrollmentId}/preview [get]
func (h *BillingHandler) TuitionPreview(c *gin.Context) {
	applySurcharge, _ := strconv.ParseBool(c.DefaultQuery("surcharge", "false"))
	preview, err := h.tuition.Preview(c.Request.Context(), c.Param("enrollmentId"), applySurcharge)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// RegisterTuition godoc
// @Summary Register a tuition installment payment
// @Tags Billing
// @Accept json
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Param surcharge query bool false "Apply delinquency surcharge"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /billing/tuition/{enrollmentId}/payments [post]
func (h *BillingHandler) RegisterTuition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	applySurcharge, _ := strconv.ParseBool(c.DefaultQuery("surcharge", "false"))
	payment, err := h.tuition.Register(c.Request.Context(), c.Param("enrollmentId"), applySurcharge, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// RentPreview godoc
// @Summary Preview pending rent installments
// @Tags Billing
// @Produce json
// @Param courseId path string true "Course ID"
// @Param professorId query string true "Professor ID"
// @Success 200 {object} response.Envelope
// @Router /billing/rent/{courseId}/preview [get]
func (h *BillingHandler) RentPreview(c *gin.Context) {
	preview, err := h.rent.Preview(c.Request.Context(), c.Param("courseId"), c.Query("professorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// RegisterRent godoc
// @Summary Register one rent installment payment
// @Tags Billing
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body service.RegisterRentRequest true "Rent payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /billing/rent/{courseId}/payments [post]
func (h *BillingHandler) RegisterRent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RegisterRentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.rent.Register(c.Request.Context(), c.Param("courseId"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// CommissionPreview godoc
// @Summary Preview the unsettled commission period
// @Tags Billing
// @Produce json
// @Param courseId path string true "Course ID"
// @Param professorId query string true "Professor ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /billing/commission/{courseId}/preview [get]
func (h *BillingHandler) CommissionPreview(c *gin.Context) {
	preview, err := h.commission.Preview(c.Request.Context(), c.Param("courseId"), c.Query("professorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// RegisterCommission godoc
// @Summary Settle the open commission period
// @Tags Billing
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body registerCommissionRequest true "Settlement payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /billing/commission/{courseId}/settlements [post]
func (h *BillingHandler) RegisterCommission(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req registerCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.commission.Register(c.Request.Context(), c.Param("courseId"), req.ProfessorID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}
