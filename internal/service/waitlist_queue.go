package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// WaitlistQueue is the strict FIFO of students waiting for a seat in one course.
type WaitlistQueue struct {
	now func() time.Time
}

// NewWaitlistQueue constructs a queue using clock for enqueue timestamps.
func NewWaitlistQueue(clock func() time.Time) *WaitlistQueue {
	if clock == nil {
		clock = utcNow
	}
	return &WaitlistQueue{now: clock}
}

// Enqueue appends the student at the tail.
func (q *WaitlistQueue) Enqueue(ctx context.Context, tx repository.CourseTx, studentID string) (*models.WaitlistEntry, error) {
	position, err := q.Position(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}
	if position > 0 {
		return nil, appErrors.Clone(appErrors.ErrAlreadyQueued, fmt.Sprintf("student %s already queued at position %d", studentID, position))
	}
	entry := &models.WaitlistEntry{CourseID: tx.CourseID(), StudentID: studentID, EnqueuedAt: q.now()}
	if err := tx.EnqueueWaitlist(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue waitlist: %w", err)
	}
	return entry, nil
}

// DequeueNext removes and returns the head, or nil when the queue is empty.
func (q *WaitlistQueue) DequeueNext(ctx context.Context, tx repository.CourseTx) (*models.WaitlistEntry, error) {
	head, err := tx.WaitlistHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("peek waitlist: %w", err)
	}
	if head == nil {
		return nil, nil
	}
	removed, err := tx.RemoveWaitlist(ctx, head.StudentID)
	if err != nil {
		return nil, fmt.Errorf("pop waitlist: %w", err)
	}
	if !removed {
		return nil, appErrors.Clone(appErrors.ErrInvariantViolation, fmt.Sprintf("waitlist head %s vanished", head.StudentID))
	}
	return head, nil
}

// Remove withdraws the student from the queue.
func (q *WaitlistQueue) Remove(ctx context.Context, tx repository.CourseTx, studentID string) (bool, error) {
	removed, err := tx.RemoveWaitlist(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("remove from waitlist: %w", err)
	}
	return removed, nil
}

// Position returns the 1-based position of the student, or 0 when absent.
func (q *WaitlistQueue) Position(ctx context.Context, tx repository.CourseTx, studentID string) (int, error) {
	entries, err := q.Entries(ctx, tx)
	if err != nil {
		return 0, err
	}
	for i, entry := range entries {
		if entry.StudentID == studentID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// Entries returns the queue in promotion order.
func (q *WaitlistQueue) Entries(ctx context.Context, tx repository.CourseTx) ([]models.WaitlistEntry, error) {
	entries, err := tx.Waitlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}
