package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/course-admission-api/internal/models"
)

type memoryCourse struct {
	capacity models.CourseCapacity
	records  []models.EnrollmentRecord
	waitlist []models.WaitlistEntry
}

func (c *memoryCourse) clone() *memoryCourse {
	cp := &memoryCourse{capacity: c.capacity}
	cp.records = append([]models.EnrollmentRecord(nil), c.records...)
	cp.waitlist = append([]models.WaitlistEntry(nil), c.waitlist...)
	return cp
}

// MemoryAdmissionStore keeps admission state in process. Each course has its
// own mutex; a section works on a staged copy that replaces the committed
// state only when the callback succeeds.
type MemoryAdmissionStore struct {
	mu      sync.RWMutex
	courses map[string]*memoryCourse
	locks   sync.Map
	seq     atomic.Int64
}

// NewMemoryAdmissionStore constructs an empty in-memory store.
func NewMemoryAdmissionStore() *MemoryAdmissionStore {
	return &MemoryAdmissionStore{courses: make(map[string]*memoryCourse)}
}

func (s *MemoryAdmissionStore) lockFor(courseID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(courseID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// EnsureCourse creates an empty 0/0 ledger for courseID when none exists.
func (s *MemoryAdmissionStore) EnsureCourse(ctx context.Context, courseID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[courseID]; ok {
		return false, nil
	}
	s.courses[courseID] = &memoryCourse{capacity: models.CourseCapacity{CourseID: courseID, UpdatedAt: time.Now().UTC()}}
	return true, nil
}

// WithinCourse runs fn while holding the course's mutex.
func (s *MemoryAdmissionStore) WithinCourse(ctx context.Context, courseID string, fn CourseTxFunc) error {
	lock := s.lockFor(courseID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	current, ok := s.courses[courseID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("load course %s: %w", courseID, ErrCourseNotFound)
	}

	staged := current.clone()
	if err := fn(&memoryCourseTx{store: s, courseID: courseID, course: staged}); err != nil {
		return err
	}

	s.mu.Lock()
	s.courses[courseID] = staged
	s.mu.Unlock()
	return nil
}

// ActiveByStudent lists committed ENROLLED/WAITLISTED records across all courses.
func (s *MemoryAdmissionStore) ActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.EnrollmentRecord
	for _, course := range s.courses {
		for _, rec := range course.records {
			if rec.StudentID == studentID && rec.Status.Active() {
				result = append(result, rec)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CourseID < result[j].CourseID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

type memoryCourseTx struct {
	store    *MemoryAdmissionStore
	courseID string
	course   *memoryCourse
}

func (t *memoryCourseTx) CourseID() string { return t.courseID }

func (t *memoryCourseTx) Capacity(ctx context.Context) (models.CourseCapacity, error) {
	return t.course.capacity, nil
}

func (t *memoryCourseTx) SaveCapacity(ctx context.Context, capacity models.CourseCapacity) error {
	if capacity.TakenSeats < 0 || capacity.TakenSeats > capacity.TotalCapacity {
		return fmt.Errorf("save capacity %s: taken %d outside [0,%d]", t.courseID, capacity.TakenSeats, capacity.TotalCapacity)
	}
	capacity.CourseID = t.courseID
	t.course.capacity = capacity
	return nil
}

func (t *memoryCourseTx) ActiveRecord(ctx context.Context, studentID string) (*models.EnrollmentRecord, error) {
	for i := len(t.course.records) - 1; i >= 0; i-- {
		rec := t.course.records[i]
		if rec.StudentID == studentID && rec.Status.Active() {
			return &rec, nil
		}
	}
	return nil, nil
}

func (t *memoryCourseTx) LatestRecord(ctx context.Context, studentID string) (*models.EnrollmentRecord, error) {
	for i := len(t.course.records) - 1; i >= 0; i-- {
		rec := t.course.records[i]
		if rec.StudentID == studentID {
			return &rec, nil
		}
	}
	return nil, nil
}

func (t *memoryCourseTx) Records(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	var result []models.EnrollmentRecord
	for _, rec := range t.course.records {
		if rec.StudentID == studentID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (t *memoryCourseTx) EnrolledRecords(ctx context.Context) ([]models.EnrollmentRecord, error) {
	var result []models.EnrollmentRecord
	for _, rec := range t.course.records {
		if rec.Status == models.EnrollmentStatusEnrolled {
			result = append(result, rec)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StatusChangedAt.Before(result[j].StatusChangedAt)
	})
	return result, nil
}

func (t *memoryCourseTx) InsertRecord(ctx context.Context, record *models.EnrollmentRecord) error {
	if record.Status.Active() {
		if existing, _ := t.ActiveRecord(ctx, record.StudentID); existing != nil {
			return fmt.Errorf("insert enrollment record: student %s already active in %s", record.StudentID, t.courseID)
		}
	}
	record.CourseID = t.courseID
	t.course.records = append(t.course.records, *record)
	return nil
}

func (t *memoryCourseTx) UpdateRecordStatus(ctx context.Context, recordID string, status models.EnrollmentStatus, at time.Time) error {
	for i := range t.course.records {
		if t.course.records[i].ID == recordID {
			t.course.records[i].Status = status
			t.course.records[i].StatusChangedAt = at
			return nil
		}
	}
	return fmt.Errorf("update enrollment record %s: %w", recordID, sql.ErrNoRows)
}

func (t *memoryCourseTx) EnqueueWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	for _, existing := range t.course.waitlist {
		if existing.StudentID == entry.StudentID {
			return fmt.Errorf("enqueue waitlist: student %s already queued for %s", entry.StudentID, t.courseID)
		}
	}
	entry.CourseID = t.courseID
	entry.Sequence = t.store.seq.Add(1)
	t.course.waitlist = append(t.course.waitlist, *entry)
	sort.SliceStable(t.course.waitlist, func(i, j int) bool {
		a, b := t.course.waitlist[i], t.course.waitlist[j]
		if a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.Sequence < b.Sequence
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})
	return nil
}

func (t *memoryCourseTx) WaitlistHead(ctx context.Context) (*models.WaitlistEntry, error) {
	if len(t.course.waitlist) == 0 {
		return nil, nil
	}
	head := t.course.waitlist[0]
	return &head, nil
}

func (t *memoryCourseTx) RemoveWaitlist(ctx context.Context, studentID string) (bool, error) {
	for i, entry := range t.course.waitlist {
		if entry.StudentID == studentID {
			t.course.waitlist = append(t.course.waitlist[:i:i], t.course.waitlist[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryCourseTx) Waitlist(ctx context.Context) ([]models.WaitlistEntry, error) {
	return append([]models.WaitlistEntry(nil), t.course.waitlist...), nil
}
