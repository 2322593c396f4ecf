package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// EnrollmentHandler exposes the admission engine endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	auth        *service.AuthService
	metrics     *service.MetricsService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, auth *service.AuthService, metrics *service.MetricsService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, auth: auth, metrics: metrics}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param departmentId query string false "Filter by department"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	caller, err := currentUser(c, h.auth)
	if err != nil {
		response.Error(c, err)
		return
	}

	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Status = c.Query("status")
	filter.DepartmentID = c.Query("departmentId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), caller, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Request godoc
// @Summary Request enrollment in a course (student self-service)
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SelfEnrollRequest true "Enrollment request"
// @Success 201 {object} response.Envelope
// @Router /enrollments/request [post]
func (h *EnrollmentHandler) Request(c *gin.Context) {
	caller, err := currentUser(c, h.auth)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.SelfEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.SelfRequest(c.Request.Context(), caller, req)
	if err != nil {
		h.observe("self_request", err)
		response.Error(c, err)
		return
	}
	h.observe("self_request", nil)
	response.Created(c, enrollment)
}

// Create godoc
// @Summary Grant an enrollment directly (admin)
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.AdminEnrollRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.AdminEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.AdminEnroll(c.Request.Context(), req)
	if err != nil {
		h.observe("admin_grant", err)
		response.Error(c, err)
		return
	}
	h.observe("admin_grant", nil)
	response.Created(c, enrollment)
}

// Transition godoc
// @Summary Transition an enrollment to a target status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/status [put]
func (h *EnrollmentHandler) Transition(c *gin.Context) {
	caller, err := currentUser(c, h.auth)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Transition(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		h.observe("transition", err)
		response.Error(c, err)
		return
	}
	h.observe("transition", nil)
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// BulkTransition godoc
// @Summary Transition a batch of enrollments to one target status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkTransitionRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/status/bulk [post]
func (h *EnrollmentHandler) BulkTransition(c *gin.Context) {
	caller, err := currentUser(c, h.auth)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.BulkTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.BulkTransition(c.Request.Context(), caller, req)
	if err != nil {
		h.observe("bulk_transition", err)
		response.Error(c, err)
		return
	}
	h.observe("bulk_transition", nil)
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 "No Content"
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Status godoc
// @Summary Course enrollment status view, shaped by caller role
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId query string false "Specific student (moderators only)"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollment-status [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	caller, err := currentUser(c, h.auth)
	if err != nil {
		response.Error(c, err)
		return
	}
	courseID := c.Param("id")

	if caller.Role == models.RoleStudent {
		view, err := h.enrollments.StudentStatus(c.Request.Context(), caller.ID, courseID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, view, nil)
		return
	}

	if studentID := c.Query("studentId"); studentID != "" {
		view, err := h.enrollments.ModeratedStudentStatus(c.Request.Context(), caller, studentID, courseID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, view, nil)
		return
	}

	summary, err := h.enrollments.CourseStatusSummary(c.Request.Context(), caller, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func (h *EnrollmentHandler) observe(operation string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case appErrors.ErrCapacityFull.Code:
				outcome = "capacity_full"
			case appErrors.ErrForbidden.Code, appErrors.ErrNotEligible.Code:
				outcome = "rejected"
			}
		}
	}
	h.metrics.ObserveAdmission(operation, outcome)
}
