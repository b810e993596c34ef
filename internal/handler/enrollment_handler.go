package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/internal/service"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
	"github.com/mgiraudo/instituto-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints, including the benefit
// adjuster and statement export.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	benefits    *service.BenefitService
	statements  *service.StatementService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, benefits *service.BenefitService, statements *service.StatementService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, benefits: benefits, statements: statements}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment with derived payment state
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	detail, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Enroll student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.EnrollStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/withdraw [put]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	detail, err := h.enrollments.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListPayments godoc
// @Summary List tuition payments of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payments [get]
func (h *EnrollmentHandler) ListPayments(c *gin.Context) {
	payments, err := h.enrollments.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// SetDiscount godoc
// @Summary Set enrollment discount percent
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetDiscountRequest true "Discount payload"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /enrollments/{id}/discount [post]
func (h *EnrollmentHandler) SetDiscount(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SetDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.benefits.SetDiscountPercent(c.Request.Context(), c.Param("id"), req, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddPoints godoc
// @Summary Credit loyalty points
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.AddPointsRequest true "Points payload"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /enrollments/{id}/points [post]
func (h *EnrollmentHandler) AddPoints(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AddPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.benefits.AddPoints(c.Request.Context(), c.Param("id"), req, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Receipt godoc
// @Summary Export a payment receipt
// @Tags Enrollments
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Param paymentId path string true "Payment ID"
// @Success 200 {file} byte
// @Router /enrollments/{id}/payments/{paymentId}/receipt [get]
func (h *EnrollmentHandler) Receipt(c *gin.Context) {
	receipt, err := h.statements.RenderReceipt(c.Request.Context(), c.Param("id"), c.Param("paymentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+receipt.FileName)
	c.Data(http.StatusOK, receipt.ContentType, receipt.Content)
}

// Statement godoc
// @Summary Export enrollment statement
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Router /enrollments/{id}/statement [get]
func (h *EnrollmentHandler) Statement(c *gin.Context) {
	format := service.StatementFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	statement, err := h.statements.RenderStatement(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+statement.FileName)
	c.Data(http.StatusOK, statement.ContentType, statement.Content)
}
