package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, inbound string) (header, fromCtx, fromGin string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) {
		fromCtx = FromContext(c.Request.Context())
		fromGin = Value(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	r.ServeHTTP(w, req)
	return w.Header().Get(Header), fromCtx, fromGin
}

func TestMiddlewarePropagatesHeader(t *testing.T) {
	header, fromCtx, fromGin := serve(t, "req-123")

	assert.Equal(t, "req-123", header)
	assert.Equal(t, "req-123", fromCtx)
	assert.Equal(t, "req-123", fromGin)
}

func TestMiddlewareGeneratesID(t *testing.T) {
	header, fromCtx, _ := serve(t, "")

	_, err := uuid.Parse(header)
	assert.NoError(t, err)
	assert.Equal(t, header, fromCtx)
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	for _, inbound := range []string{"has space", strings.Repeat("x", 200)} {
		header, _, _ := serve(t, inbound)
		assert.NotEqual(t, inbound, header)
		_, err := uuid.Parse(header)
		assert.NoError(t, err, inbound)
	}
}
