package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admission-api/internal/service"
	"github.com/noah-isme/course-admission-api/pkg/response"
)

type rosterExporter interface {
	Export(ctx context.Context, courseID, format string) (*service.RosterFile, error)
}

// RosterHandler streams course roster documents.
type RosterHandler struct {
	exporter rosterExporter
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(exporter rosterExporter) *RosterHandler {
	return &RosterHandler{exporter: exporter}
}

// Export godoc
// @Summary Download a course roster
// @Description Enrolled students followed by the waitlist in promotion order.
// @Tags Capacity
// @Produce text/csv
// @Produce application/pdf
// @Param courseId path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /courses/{courseId}/roster [get]
func (h *RosterHandler) Export(c *gin.Context) {
	file, err := h.exporter.Export(c.Request.Context(), courseParam(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}
