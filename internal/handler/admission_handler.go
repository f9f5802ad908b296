package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
	"github.com/noah-isme/course-admission-api/pkg/response"
)

type admissionService interface {
	Enroll(ctx context.Context, req dto.EnrollRequest) (*models.EnrollmentOutcome, error)
	Drop(ctx context.Context, req dto.DropRequest) (*models.EnrollmentOutcome, error)
	GetStatus(ctx context.Context, courseID, studentID string) (*models.EnrollmentStatusView, error)
	GetWaitlistPosition(ctx context.Context, courseID, studentID string) (*dto.WaitlistPositionResponse, error)
	ListWaitlist(ctx context.Context, courseID string, query dto.WaitlistQuery) ([]models.WaitlistEntry, *models.Pagination, error)
	GetCapacity(ctx context.Context, courseID string) (*dto.CapacityResponse, error)
	SetCapacity(ctx context.Context, req dto.SetCapacityRequest) (*dto.CapacityResponse, error)
}

// AdmissionHandler exposes enrollment, waitlist and capacity endpoints.
type AdmissionHandler struct {
	service admissionService
}

// NewAdmissionHandler builds a new handler.
func NewAdmissionHandler(service admissionService) *AdmissionHandler {
	return &AdmissionHandler{service: service}
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Description Admits the student when a seat is free, otherwise appends them to the waitlist.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope "enrolled"
// @Success 202 {object} response.Envelope "waitlisted"
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/{courseId}/enrollments [post]
func (h *AdmissionHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	req.CourseID = courseParam(c)

	outcome, err := h.service.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if outcome.Status == models.EnrollmentStatusWaitlisted {
		response.Accepted(c, outcome)
		return
	}
	response.Created(c, outcome)
}

// Drop godoc
// @Summary Drop a student from a course or its waitlist
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{courseId}/enrollments/{studentId} [delete]
func (h *AdmissionHandler) Drop(c *gin.Context) {
	outcome, err := h.service.Drop(c.Request.Context(), dto.DropRequest{CourseID: courseParam(c), StudentID: studentParam(c)})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, outcome)
}

// Status godoc
// @Summary Get a student's enrollment status and history in a course
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/enrollments/{studentId} [get]
func (h *AdmissionHandler) Status(c *gin.Context) {
	view, err := h.service.GetStatus(c.Request.Context(), courseParam(c), studentParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// ListWaitlist godoc
// @Summary List a course waitlist in promotion order
// @Tags Waitlist
// @Produce json
// @Param courseId path string true "Course ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/waitlist [get]
func (h *AdmissionHandler) ListWaitlist(c *gin.Context) {
	var query dto.WaitlistQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pagination parameters"))
		return
	}
	entries, pagination, err := h.service.ListWaitlist(c.Request.Context(), courseParam(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, entries, pagination)
}

// WaitlistPosition godoc
// @Summary Get a student's waitlist position
// @Tags Waitlist
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/waitlist/{studentId} [get]
func (h *AdmissionHandler) WaitlistPosition(c *gin.Context) {
	position, err := h.service.GetWaitlistPosition(c.Request.Context(), courseParam(c), studentParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, position)
}

// GetCapacity godoc
// @Summary Get a course's seat ledger
// @Tags Capacity
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/capacity [get]
func (h *AdmissionHandler) GetCapacity(c *gin.Context) {
	capacity, err := h.service.GetCapacity(c.Request.Context(), courseParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, capacity)
}

// SetCapacity godoc
// @Summary Create or resize a course's seat ledger
// @Description Growing capacity promotes waitlisted students in FIFO order.
// @Tags Capacity
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.SetCapacityRequest true "Capacity payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{courseId}/capacity [put]
func (h *AdmissionHandler) SetCapacity(c *gin.Context) {
	var req dto.SetCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid capacity payload"))
		return
	}
	req.CourseID = courseParam(c)

	capacity, err := h.service.SetCapacity(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, capacity)
}

// RegisterRoutes mounts the admission endpoints on group.
func (h *AdmissionHandler) RegisterRoutes(group *gin.RouterGroup) {
	courses := group.Group("/courses/:courseId")
	courses.POST("/enrollments", h.Enroll)
	courses.GET("/enrollments/:studentId", h.Status)
	courses.DELETE("/enrollments/:studentId", h.Drop)
	courses.GET("/waitlist", h.ListWaitlist)
	courses.GET("/waitlist/:studentId", h.WaitlistPosition)
	courses.GET("/capacity", h.GetCapacity)
	courses.PUT("/capacity", h.SetCapacity)
}
