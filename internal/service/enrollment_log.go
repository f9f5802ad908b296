package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// EnrollmentLog owns the state transitions of (student, course) records.
// Dropped records stay in the log as history.
type EnrollmentLog struct {
	now func() time.Time
}

// NewEnrollmentLog constructs a log using clock for timestamps.
func NewEnrollmentLog(clock func() time.Time) *EnrollmentLog {
	if clock == nil {
		clock = utcNow
	}
	return &EnrollmentLog{now: clock}
}

// CurrentStatus returns the active record of the student, or nil.
func (l *EnrollmentLog) CurrentStatus(ctx context.Context, tx repository.CourseTx, studentID string) (*models.EnrollmentRecord, error) {
	rec, err := tx.ActiveRecord(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("read enrollment status: %w", err)
	}
	return rec, nil
}

// Latest returns the most recent record regardless of status, or nil.
func (l *EnrollmentLog) Latest(ctx context.Context, tx repository.CourseTx, studentID string) (*models.EnrollmentRecord, error) {
	rec, err := tx.LatestRecord(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("read latest enrollment: %w", err)
	}
	return rec, nil
}

// History returns every record of the student in the course, oldest first.
func (l *EnrollmentLog) History(ctx context.Context, tx repository.CourseTx, studentID string) ([]models.EnrollmentRecord, error) {
	records, err := tx.Records(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("read enrollment history: %w", err)
	}
	return records, nil
}

// RecordEnroll appends an ENROLLED record.
func (l *EnrollmentLog) RecordEnroll(ctx context.Context, tx repository.CourseTx, studentID string) (*models.EnrollmentRecord, error) {
	return l.append(ctx, tx, studentID, models.EnrollmentStatusEnrolled)
}

// RecordWaitlist appends a WAITLISTED record.
func (l *EnrollmentLog) RecordWaitlist(ctx context.Context, tx repository.CourseTx, studentID string) (*models.EnrollmentRecord, error) {
	return l.append(ctx, tx, studentID, models.EnrollmentStatusWaitlisted)
}

func (l *EnrollmentLog) append(ctx context.Context, tx repository.CourseTx, studentID string, status models.EnrollmentStatus) (*models.EnrollmentRecord, error) {
	active, err := l.CurrentStatus(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, fmt.Sprintf("student %s is already %s in course %s", studentID, active.Status, tx.CourseID()))
	}
	now := l.now()
	rec := &models.EnrollmentRecord{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		CourseID:        tx.CourseID(),
		Status:          status,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
	if err := tx.InsertRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("append enrollment record: %w", err)
	}
	return rec, nil
}

// RecordDrop moves the active record to DROPPED and reports its prior status.
func (l *EnrollmentLog) RecordDrop(ctx context.Context, tx repository.CourseTx, studentID string) (*models.EnrollmentRecord, models.EnrollmentStatus, error) {
	active, err := l.CurrentStatus(ctx, tx, studentID)
	if err != nil {
		return nil, "", err
	}
	if active == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s has no active enrollment in course %s", studentID, tx.CourseID()))
	}
	prior := active.Status
	if err := l.transition(ctx, tx, active, models.EnrollmentStatusDropped); err != nil {
		return nil, "", err
	}
	return active, prior, nil
}

// Promote moves a WAITLISTED record to ENROLLED.
func (l *EnrollmentLog) Promote(ctx context.Context, tx repository.CourseTx, studentID string) (*models.EnrollmentRecord, error) {
	active, err := l.CurrentStatus(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}
	if active == nil || active.Status != models.EnrollmentStatusWaitlisted {
		return nil, appErrors.Clone(appErrors.ErrNotWaitlisted, fmt.Sprintf("student %s is not waitlisted in course %s", studentID, tx.CourseID()))
	}
	if err := l.transition(ctx, tx, active, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return active, nil
}

func (l *EnrollmentLog) transition(ctx context.Context, tx repository.CourseTx, rec *models.EnrollmentRecord, status models.EnrollmentStatus) error {
	at := l.now()
	if err := tx.UpdateRecordStatus(ctx, rec.ID, status, at); err != nil {
		return fmt.Errorf("transition enrollment to %s: %w", status, err)
	}
	rec.Status = status
	rec.StatusChangedAt = at
	return nil
}
