package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// AssignmentHandler exposes course-assignment administration endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs AssignmentHandler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// List godoc
// @Summary List course assignments
// @Tags Course Assignments
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param collegeId query string false "Filter by college"
// @Param departmentId query string false "Filter by department"
// @Success 200 {object} response.Envelope
// @Router /course-assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	filter := models.AssignmentFilter{
		CourseID:     c.Query("courseId"),
		CollegeID:    c.Query("collegeId"),
		DepartmentID: c.Query("departmentId"),
	}
	assignments, err := h.assignments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Create godoc
// @Summary Assign a course to an organizational scope
// @Tags Course Assignments
// @Accept json
// @Produce json
// @Param payload body service.AssignCourseRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /course-assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.AssignCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.assignments.Assign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Delete godoc
// @Summary Remove a course assignment
// @Tags Course Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204 "No Content"
// @Router /course-assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	if err := h.assignments.Unassign(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
