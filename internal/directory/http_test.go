package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admission-api/internal/models"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

func fastOptions() HTTPOptions {
	return HTTPOptions{Timeout: time.Second, MaxRetries: 2, InitialInterval: time.Millisecond}
}

func TestHTTPCourseDirectoryGetCourse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/courses/CS201", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.CourseInfo{
			ID: "CS201", Name: "Data Structures", Prerequisites: []string{"CS101"},
			Schedule: []models.Meeting{{Day: "TUE", Start: "13:00", End: "14:30"}},
		})
	}))
	defer srv.Close()

	dir := NewHTTPCourseDirectory(srv.URL, fastOptions())
	course, err := dir.GetCourse(context.Background(), "CS201")
	require.NoError(t, err)
	assert.Equal(t, "Data Structures", course.Name)
	assert.Equal(t, []string{"CS101"}, course.Prerequisites)
}

func TestHTTPStudentDirectoryHoldsDefaultActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/students/s1/holds", r.URL.Path)
		_, _ = w.Write([]byte(`[{"code":"BURSAR","reason":"unpaid"},{"code":"LIBRARY","active":false},{"code":"DEAN","active":true}]`))
	}))
	defer srv.Close()

	dir := NewHTTPStudentDirectory(srv.URL, fastOptions())
	holds, err := dir.Holds(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, holds, 3)
	assert.Equal(t, models.Hold{Code: "BURSAR", Reason: "unpaid", Active: true}, holds[0])
	assert.False(t, holds[1].Active)
	assert.True(t, holds[2].Active)
}

func TestHTTPDirectoryRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]models.CompletedGrade{{CourseID: "CS101", Grade: "A"}})
	}))
	defer srv.Close()

	dir := NewHTTPStudentDirectory(srv.URL, fastOptions())
	grades, err := dir.CompletedGrades(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPDirectoryExhaustedRetriesIsDependencyError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := NewHTTPStudentDirectory(srv.URL, fastOptions())
	_, err := dir.Holds(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDependencyUnavailable))
	assert.True(t, appErrors.IsRetryable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPDirectoryNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := NewHTTPCourseDirectory(srv.URL, fastOptions())
	_, err := dir.GetCourse(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.False(t, appErrors.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPCourseDirectoryNotifyCapacity(t *testing.T) {
	var got capacityReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/courses/CS201/capacity", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	dir := NewHTTPCourseDirectory(srv.URL, fastOptions())
	require.NoError(t, dir.NotifyCapacityChanged(context.Background(), "CS201", 7))
	assert.Equal(t, 7, got.TakenSeats)
}
