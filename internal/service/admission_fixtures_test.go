package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type stubCourseDirectory struct {
	mu       sync.Mutex
	courses  map[string]models.CourseInfo
	err      error
	calls    int
	reported map[string]int
}

func newStubCourseDirectory(courses ...models.CourseInfo) *stubCourseDirectory {
	d := &stubCourseDirectory{courses: make(map[string]models.CourseInfo), reported: make(map[string]int)}
	for _, c := range courses {
		d.courses[c.ID] = c
	}
	return d
}

func (d *stubCourseDirectory) GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	course, ok := d.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("get course %s: %w", courseID, sql.ErrNoRows)
	}
	return &course, nil
}

func (d *stubCourseDirectory) NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reported[courseID] = takenSeats
	return nil
}

// stubStudentDirectory serves grades and holds from maps and live
// enrollments from the admission store, like the static catalog does.
type stubStudentDirectory struct {
	mu       sync.Mutex
	grades   map[string][]models.CompletedGrade
	holds    map[string][]models.Hold
	failures map[string]error
	store    *repository.MemoryAdmissionStore
}

func newStubStudentDirectory(store *repository.MemoryAdmissionStore) *stubStudentDirectory {
	return &stubStudentDirectory{
		grades:   make(map[string][]models.CompletedGrade),
		holds:    make(map[string][]models.Hold),
		failures: make(map[string]error),
		store:    store,
	}
}

func (d *stubStudentDirectory) setGrades(studentID string, grades ...models.CompletedGrade) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grades[studentID] = grades
}

func (d *stubStudentDirectory) setHold(studentID, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holds[studentID] = append(d.holds[studentID], models.Hold{Code: code, Reason: "administrative", Active: true})
}

func (d *stubStudentDirectory) fail(studentID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, studentID)
		return
	}
	d.failures[studentID] = err
}

func (d *stubStudentDirectory) failure(studentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[studentID]
}

func (d *stubStudentDirectory) CompletedGrades(ctx context.Context, studentID string) ([]models.CompletedGrade, error) {
	if err := d.failure(studentID); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.CompletedGrade(nil), d.grades[studentID]...), nil
}

func (d *stubStudentDirectory) ActiveEnrollments(ctx context.Context, studentID string) ([]models.ActiveEnrollment, error) {
	if err := d.failure(studentID); err != nil {
		return nil, err
	}
	records, err := d.store.ActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	result := make([]models.ActiveEnrollment, 0, len(records))
	for _, rec := range records {
		result = append(result, models.ActiveEnrollment{CourseID: rec.CourseID, Status: rec.Status})
	}
	return result, nil
}

func (d *stubStudentDirectory) Holds(ctx context.Context, studentID string) ([]models.Hold, error) {
	if err := d.failure(studentID); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Hold(nil), d.holds[studentID]...), nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []models.AdmissionEvent
	capacity map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{capacity: make(map[string]int)}
}

func (n *recordingNotifier) Publish(ctx context.Context, events ...models.AdmissionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) CapacityChanged(ctx context.Context, courseID string, takenSeats int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.capacity[courseID] = takenSeats
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, fmt.Sprintf("%s:%s", e.Type, e.StudentID))
	}
	return out
}

type admissionFixture struct {
	svc      *AdmissionService
	store    *repository.MemoryAdmissionStore
	courses  *stubCourseDirectory
	students *stubStudentDirectory
	notifier *recordingNotifier
	metrics  *MetricsService
}

func newAdmissionFixture(t *testing.T, courses ...models.CourseInfo) *admissionFixture {
	t.Helper()
	store := repository.NewMemoryAdmissionStore()
	f := &admissionFixture{
		store:    store,
		courses:  newStubCourseDirectory(courses...),
		students: newStubStudentDirectory(store),
		notifier: newRecordingNotifier(),
		metrics:  NewMetricsService(),
	}
	clock := newStepClock()
	f.svc = NewAdmissionService(store, f.courses, f.students, nil, nil,
		WithAdmissionClock(clock.Now),
		WithAdmissionNotifier(f.notifier),
		WithAdmissionMetrics(f.metrics),
	)
	return f
}

func (f *admissionFixture) setCapacity(t *testing.T, courseID string, total int) *dto.CapacityResponse {
	t.Helper()
	resp, err := f.svc.SetCapacity(context.Background(), dto.SetCapacityRequest{CourseID: courseID, TotalCapacity: &total})
	require.NoError(t, err)
	return resp
}

func (f *admissionFixture) enroll(t *testing.T, courseID, studentID string) *models.EnrollmentOutcome {
	t.Helper()
	outcome, err := f.svc.Enroll(context.Background(), dto.EnrollRequest{CourseID: courseID, StudentID: studentID})
	require.NoError(t, err)
	return outcome
}

func (f *admissionFixture) drop(t *testing.T, courseID, studentID string) *models.EnrollmentOutcome {
	t.Helper()
	outcome, err := f.svc.Drop(context.Background(), dto.DropRequest{CourseID: courseID, StudentID: studentID})
	require.NoError(t, err)
	return outcome
}

func (f *admissionFixture) status(t *testing.T, courseID, studentID string) models.EnrollmentStatus {
	t.Helper()
	view, err := f.svc.GetStatus(context.Background(), courseID, studentID)
	require.NoError(t, err)
	return view.Status
}

func (f *admissionFixture) capacity(t *testing.T, courseID string) models.CourseCapacity {
	t.Helper()
	resp, err := f.svc.GetCapacity(context.Background(), courseID)
	require.NoError(t, err)
	return resp.Capacity
}

func course(id string, meetings ...models.Meeting) models.CourseInfo {
	return models.CourseInfo{ID: id, Code: id, Name: "Course " + id, Schedule: meetings}
}

func meeting(day, start, end string) models.Meeting {
	return models.Meeting{Day: day, Start: start, End: end}
}
