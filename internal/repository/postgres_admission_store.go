package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admission-api/internal/models"
)

const (
	recordColumns   = "id, student_id, course_id, status, created_at, status_changed_at"
	waitlistColumns = "course_id, student_id, seq, enqueued_at"
)

// DefaultSectionTimeout bounds how long a section may hold its connection and row lock.
const DefaultSectionTimeout = 5 * time.Second

// AdmissionStore persists ledgers, enrollment logs and waitlists in Postgres.
// A section locks the course_capacities row so concurrent sections on the same
// course serialize while other courses proceed.
type AdmissionStore struct {
	db             *sqlx.DB
	sectionTimeout time.Duration
}

// AdmissionStoreOption configures the Postgres store.
type AdmissionStoreOption func(*AdmissionStore)

// WithSectionTimeout overrides DefaultSectionTimeout. Zero disables the deadline.
func WithSectionTimeout(d time.Duration) AdmissionStoreOption {
	return func(s *AdmissionStore) {
		if d >= 0 {
			s.sectionTimeout = d
		}
	}
}

// NewAdmissionStore constructs the Postgres backed store.
func NewAdmissionStore(db *sqlx.DB, opts ...AdmissionStoreOption) *AdmissionStore {
	s := &AdmissionStore{db: db, sectionTimeout: DefaultSectionTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureCourse creates an empty 0/0 ledger row for courseID when none exists.
func (s *AdmissionStore) EnsureCourse(ctx context.Context, courseID string) (bool, error) {
	const query = `INSERT INTO course_capacities (course_id, total_capacity, taken_seats, updated_at)
VALUES ($1, 0, 0, $2)
ON CONFLICT (course_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, courseID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("ensure course capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure course capacity rows: %w", err)
	}
	return affected > 0, nil
}

// WithinCourse runs fn inside one transaction holding the course row lock.
// Past the section deadline the transaction is rolled back, its connection
// returns to the pool and ErrSectionTimeout is reported.
func (s *AdmissionStore) WithinCourse(ctx context.Context, courseID string, fn CourseTxFunc) (err error) {
	sectionCtx := ctx
	if s.sectionTimeout > 0 {
		var cancel context.CancelFunc
		sectionCtx, cancel = context.WithTimeout(ctx, s.sectionTimeout)
		defer cancel()
	}
	defer func() {
		if err != nil && ctx.Err() == nil && errors.Is(sectionCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("course %s: %w: %w", courseID, ErrSectionTimeout, err)
		}
	}()

	tx, err := s.db.BeginTxx(sectionCtx, nil)
	if err != nil {
		return fmt.Errorf("begin admission transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity models.CourseCapacity
	const lockQuery = `SELECT course_id, total_capacity, taken_seats, updated_at FROM course_capacities WHERE course_id = $1 FOR UPDATE`
	if err = tx.GetContext(sectionCtx, &capacity, lockQuery, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load course %s: %w", courseID, ErrCourseNotFound)
		}
		return fmt.Errorf("lock course capacity: %w", err)
	}

	if err = fn(&sqlCourseTx{tx: tx, courseID: courseID, capacity: capacity}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit admission transaction: %w", err)
	}
	return nil
}

// ActiveByStudent lists ENROLLED/WAITLISTED records of a student across all courses.
func (s *AdmissionStore) ActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM enrollment_records
WHERE student_id = $1 AND status IN ('ENROLLED', 'WAITLISTED')
ORDER BY created_at ASC, course_id ASC`
	var records []models.EnrollmentRecord
	if err := s.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return records, nil
}

type sqlCourseTx struct {
	tx       *sqlx.Tx
	courseID string
	capacity models.CourseCapacity
}

func (t *sqlCourseTx) CourseID() string { return t.courseID }

func (t *sqlCourseTx) Capacity(ctx context.Context) (models.CourseCapacity, error) {
	return t.capacity, nil
}

func (t *sqlCourseTx) SaveCapacity(ctx context.Context, capacity models.CourseCapacity) error {
	const query = `UPDATE course_capacities SET total_capacity = $2, taken_seats = $3, updated_at = $4 WHERE course_id = $1`
	if _, err := t.tx.ExecContext(ctx, query, t.courseID, capacity.TotalCapacity, capacity.TakenSeats, capacity.UpdatedAt); err != nil {
		return fmt.Errorf("update course capacity: %w", err)
	}
	capacity.CourseID = t.courseID
	t.capacity = capacity
	return nil
}

func (t *sqlCourseTx) getRecord(ctx context.Context, query, what string, args ...interface{}) (*models.EnrollmentRecord, error) {
	var rec models.EnrollmentRecord
	if err := t.tx.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s enrollment record: %w", what, err)
	}
	return &rec, nil
}

func (t *sqlCourseTx) ActiveRecord(ctx context.Context, studentID string) (*models.EnrollmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM enrollment_records
WHERE course_id = $1 AND student_id = $2 AND status IN ('ENROLLED', 'WAITLISTED')
LIMIT 1`
	return t.getRecord(ctx, query, "active", t.courseID, studentID)
}

func (t *sqlCourseTx) LatestRecord(ctx context.Context, studentID string) (*models.EnrollmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM enrollment_records
WHERE course_id = $1 AND student_id = $2
ORDER BY created_at DESC, status_changed_at DESC
LIMIT 1`
	return t.getRecord(ctx, query, "latest", t.courseID, studentID)
}

func (t *sqlCourseTx) Records(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM enrollment_records
WHERE course_id = $1 AND student_id = $2
ORDER BY created_at ASC, status_changed_at ASC`
	var records []models.EnrollmentRecord
	if err := t.tx.SelectContext(ctx, &records, query, t.courseID, studentID); err != nil {
		return nil, fmt.Errorf("list enrollment records: %w", err)
	}
	return records, nil
}

func (t *sqlCourseTx) EnrolledRecords(ctx context.Context) ([]models.EnrollmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM enrollment_records
WHERE course_id = $1 AND status = 'ENROLLED'
ORDER BY status_changed_at ASC, student_id ASC`
	var records []models.EnrollmentRecord
	if err := t.tx.SelectContext(ctx, &records, query, t.courseID); err != nil {
		return nil, fmt.Errorf("list enrolled records: %w", err)
	}
	return records, nil
}

func (t *sqlCourseTx) InsertRecord(ctx context.Context, record *models.EnrollmentRecord) error {
	record.CourseID = t.courseID
	const query = `INSERT INTO enrollment_records (id, student_id, course_id, status, created_at, status_changed_at)
VALUES (:id, :student_id, :course_id, :status, :created_at, :status_changed_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert enrollment record: %w", err)
	}
	return nil
}

func (t *sqlCourseTx) UpdateRecordStatus(ctx context.Context, recordID string, status models.EnrollmentStatus, at time.Time) error {
	const query = `UPDATE enrollment_records SET status = $2, status_changed_at = $3 WHERE id = $1 AND course_id = $4`
	res, err := t.tx.ExecContext(ctx, query, recordID, status, at, t.courseID)
	if err != nil {
		return fmt.Errorf("update enrollment record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment record rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update enrollment record %s: %w", recordID, sql.ErrNoRows)
	}
	return nil
}

func (t *sqlCourseTx) EnqueueWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	entry.CourseID = t.courseID
	const query = `INSERT INTO waitlist_entries (course_id, student_id, enqueued_at) VALUES ($1, $2, $3) RETURNING seq`
	if err := t.tx.QueryRowxContext(ctx, query, t.courseID, entry.StudentID, entry.EnqueuedAt).Scan(&entry.Sequence); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (t *sqlCourseTx) WaitlistHead(ctx context.Context) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE course_id = $1 ORDER BY enqueued_at ASC, seq ASC LIMIT 1`
	var entry models.WaitlistEntry
	if err := t.tx.GetContext(ctx, &entry, query, t.courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get waitlist head: %w", err)
	}
	return &entry, nil
}

func (t *sqlCourseTx) RemoveWaitlist(ctx context.Context, studentID string) (bool, error) {
	const query = `DELETE FROM waitlist_entries WHERE course_id = $1 AND student_id = $2`
	res, err := t.tx.ExecContext(ctx, query, t.courseID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete waitlist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete waitlist entry rows: %w", err)
	}
	return affected > 0, nil
}

func (t *sqlCourseTx) Waitlist(ctx context.Context) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE course_id = $1 ORDER BY enqueued_at ASC, seq ASC`
	var entries []models.WaitlistEntry
	if err := t.tx.SelectContext(ctx, &entries, query, t.courseID); err != nil {
		return nil, fmt.Errorf("list waitlist entries: %w", err)
	}
	return entries, nil
}
