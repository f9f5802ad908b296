package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// retryAfterSeconds is the hint sent with retryable failures.
const retryAfterSeconds = 1

// Envelope is the body of every JSON response.
type Envelope struct {
	Data       interface{}        `json:"data,omitempty"`
	Error      *appErrors.Error   `json:"error,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

func write(c *gin.Context, status int, env Envelope) {
	// Admission state changes on every request; nothing here is cacheable.
	c.Header("Cache-Control", "no-store")
	c.JSON(status, env)
}

// OK responds 200 with data.
func OK(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Envelope{Data: data})
}

// Created responds 201 with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Envelope{Data: data})
}

// Accepted responds 202 with data.
func Accepted(c *gin.Context, data interface{}) {
	write(c, http.StatusAccepted, Envelope{Data: data})
}

// Page responds 200 with one page of items.
func Page(c *gin.Context, items interface{}, pagination *models.Pagination) {
	write(c, http.StatusOK, Envelope{Data: items, Pagination: pagination})
}

// Error maps err onto its status code. Unknown errors become 500.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Retryable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	_ = c.Error(err)
	write(c, appErr.Status, Envelope{Error: appErr})
}
