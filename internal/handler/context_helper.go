package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func courseParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("courseId"))
}

func studentParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("studentId"))
}
