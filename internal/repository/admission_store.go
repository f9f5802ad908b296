package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// ErrCourseNotFound is returned by WithinCourse when the course has no ledger.
// It matches sql.ErrNoRows.
var ErrCourseNotFound = fmt.Errorf("course ledger not found: %w", sql.ErrNoRows)

// ErrSectionTimeout is returned when a section outlives the store deadline.
// The section is rolled back and may be retried.
var ErrSectionTimeout = errors.New("course section deadline exceeded")

// CourseTx exposes one course's ledger, log and waitlist inside an exclusive
// section. Implementations are only valid for the duration of the callback
// passed to WithinCourse. Lookups that find nothing return (nil, nil).
type CourseTx interface {
	CourseID() string

	Capacity(ctx context.Context) (models.CourseCapacity, error)
	SaveCapacity(ctx context.Context, capacity models.CourseCapacity) error

	ActiveRecord(ctx context.Context, studentID string) (*models.EnrollmentRecord, error)
	LatestRecord(ctx context.Context, studentID string) (*models.EnrollmentRecord, error)
	Records(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error)
	EnrolledRecords(ctx context.Context) ([]models.EnrollmentRecord, error)
	InsertRecord(ctx context.Context, record *models.EnrollmentRecord) error
	UpdateRecordStatus(ctx context.Context, recordID string, status models.EnrollmentStatus, at time.Time) error

	EnqueueWaitlist(ctx context.Context, entry *models.WaitlistEntry) error
	WaitlistHead(ctx context.Context) (*models.WaitlistEntry, error)
	RemoveWaitlist(ctx context.Context, studentID string) (bool, error)
	Waitlist(ctx context.Context) ([]models.WaitlistEntry, error)
}

// CourseTxFunc is the body of a per-course critical section. Returning an
// error discards every mutation made through the CourseTx.
type CourseTxFunc func(tx CourseTx) error
