package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

type admissionServiceMock struct {
	enrollResp   *models.EnrollmentOutcome
	enrollErr    error
	lastEnroll   dto.EnrollRequest
	dropResp     *models.EnrollmentOutcome
	dropErr      error
	lastDrop     dto.DropRequest
	statusResp   *models.EnrollmentStatusView
	positionResp *dto.WaitlistPositionResponse
	listResp     []models.WaitlistEntry
	listPage     *models.Pagination
	lastQuery    dto.WaitlistQuery
	capacityResp *dto.CapacityResponse
	capacityErr  error
	lastCapacity dto.SetCapacityRequest
	enrollCalled bool
}

func (m *admissionServiceMock) Enroll(ctx context.Context, req dto.EnrollRequest) (*models.EnrollmentOutcome, error) {
	m.enrollCalled = true
	m.lastEnroll = req
	return m.enrollResp, m.enrollErr
}

func (m *admissionServiceMock) Drop(ctx context.Context, req dto.DropRequest) (*models.EnrollmentOutcome, error) {
	m.lastDrop = req
	return m.dropResp, m.dropErr
}

func (m *admissionServiceMock) GetStatus(ctx context.Context, courseID, studentID string) (*models.EnrollmentStatusView, error) {
	return m.statusResp, nil
}

func (m *admissionServiceMock) GetWaitlistPosition(ctx context.Context, courseID, studentID string) (*dto.WaitlistPositionResponse, error) {
	return m.positionResp, nil
}

func (m *admissionServiceMock) ListWaitlist(ctx context.Context, courseID string, query dto.WaitlistQuery) ([]models.WaitlistEntry, *models.Pagination, error) {
	m.lastQuery = query
	return m.listResp, m.listPage, nil
}

func (m *admissionServiceMock) GetCapacity(ctx context.Context, courseID string) (*dto.CapacityResponse, error) {
	return m.capacityResp, m.capacityErr
}

func (m *admissionServiceMock) SetCapacity(ctx context.Context, req dto.SetCapacityRequest) (*dto.CapacityResponse, error) {
	m.lastCapacity = req
	return m.capacityResp, m.capacityErr
}

func newAdmissionRouter(mock *admissionServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewAdmissionHandler(mock).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func decodeEnvelope(t *testing.T, body *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Bytes(), &payload))
	return payload
}

func TestAdmissionHandlerEnroll(t *testing.T) {
	mock := &admissionServiceMock{enrollResp: &models.EnrollmentOutcome{StudentID: "S1", CourseID: "CS101", Status: models.EnrollmentStatusEnrolled}}
	router := newAdmissionRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/courses/CS101/enrollments", bytes.NewBufferString(`{"student_id":"S1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dto.EnrollRequest{CourseID: "CS101", StudentID: "S1"}, mock.lastEnroll)
	data := decodeEnvelope(t, w.Body)["data"].(map[string]interface{})
	assert.Equal(t, "ENROLLED", data["status"])
}

func TestAdmissionHandlerEnrollWaitlisted(t *testing.T) {
	mock := &admissionServiceMock{enrollResp: &models.EnrollmentOutcome{StudentID: "S2", CourseID: "CS101", Status: models.EnrollmentStatusWaitlisted, WaitlistPosition: 3}}
	router := newAdmissionRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/courses/CS101/enrollments", bytes.NewBufferString(`{"student_id":"S2"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestAdmissionHandlerEnrollInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &admissionServiceMock{}
	handler := NewAdmissionHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/courses/CS101/enrollments", bytes.NewBufferString(`{"student_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "courseId", Value: "CS101"}}

	handler.Enroll(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mock.enrollCalled)
}

func TestAdmissionHandlerMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"ineligible", appErrors.Clone(appErrors.ErrIneligible, "prerequisite CS100 not completed"), http.StatusUnprocessableEntity, "ENROLLMENT_INELIGIBLE", ""},
		{"duplicate", appErrors.Clone(appErrors.ErrDuplicateEnrollment, "already enrolled"), http.StatusConflict, "DUPLICATE_ENROLLMENT", ""},
		{"not found", appErrors.Clone(appErrors.ErrNotFound, "course CS999 not found"), http.StatusNotFound, "NOT_FOUND", ""},
		{"dependency", appErrors.Dependency(errors.New("timeout"), "student directory unreachable"), http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "1"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAdmissionRouter(&admissionServiceMock{enrollErr: tc.err})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/courses/CS101/enrollments", bytes.NewBufferString(`{"student_id":"S1"}`))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			errPayload := decodeEnvelope(t, w.Body)["error"].(map[string]interface{})
			assert.Equal(t, tc.code, errPayload["code"])
		})
	}
}

func TestAdmissionHandlerDrop(t *testing.T) {
	mock := &admissionServiceMock{dropResp: &models.EnrollmentOutcome{StudentID: "S1", CourseID: "CS101", Status: models.EnrollmentStatusDropped, Promoted: []string{"S2"}}}
	router := newAdmissionRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/courses/CS101/enrollments/S1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.DropRequest{CourseID: "CS101", StudentID: "S1"}, mock.lastDrop)
	data := decodeEnvelope(t, w.Body)["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{"S2"}, data["promoted"])
}

func TestAdmissionHandlerWaitlist(t *testing.T) {
	position := 2
	mock := &admissionServiceMock{
		listResp:     []models.WaitlistEntry{{CourseID: "CS101", StudentID: "S3"}},
		listPage:     &models.Pagination{Page: 2, PageSize: 1, TotalCount: 4},
		positionResp: &dto.WaitlistPositionResponse{CourseID: "CS101", StudentID: "S3", Waitlisted: true, Position: &position},
	}
	router := newAdmissionRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/courses/CS101/waitlist?page=2&limit=1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.WaitlistQuery{Page: 2, Limit: 1}, mock.lastQuery)
	pagination := decodeEnvelope(t, w.Body)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(4), pagination["total_count"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/courses/CS101/waitlist?page=abc", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/courses/CS101/waitlist/S3", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w.Body)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["position"])
}

func TestAdmissionHandlerSetCapacity(t *testing.T) {
	mock := &admissionServiceMock{capacityResp: &dto.CapacityResponse{Capacity: models.CourseCapacity{CourseID: "CS101", TotalCapacity: 30}, Available: 30}}
	router := newAdmissionRouter(mock)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/v1/courses/CS101/capacity", bytes.NewBufferString(`{"total_capacity":30}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastCapacity.TotalCapacity)
	assert.Equal(t, 30, *mock.lastCapacity.TotalCapacity)
	assert.Equal(t, "CS101", mock.lastCapacity.CourseID)

	mock.capacityErr = appErrors.Clone(appErrors.ErrCapacityBelowTaken, "course CS101 already has 12 seats taken")
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPut, "/api/v1/courses/CS101/capacity", bytes.NewBufferString(`{"total_capacity":5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
