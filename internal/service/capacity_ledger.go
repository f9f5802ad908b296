package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// CapacityLedger tracks one course's seat counter. Every call must run inside
// the course's exclusive section so reservations are linearizable.
type CapacityLedger struct {
	now func() time.Time
}

// NewCapacityLedger constructs a ledger using clock for timestamps.
func NewCapacityLedger(clock func() time.Time) *CapacityLedger {
	if clock == nil {
		clock = utcNow
	}
	return &CapacityLedger{now: clock}
}

// Snapshot returns the current counter.
func (l *CapacityLedger) Snapshot(ctx context.Context, tx repository.CourseTx) (models.CourseCapacity, error) {
	capacity, err := tx.Capacity(ctx)
	if err != nil {
		return models.CourseCapacity{}, fmt.Errorf("read capacity: %w", err)
	}
	return capacity, nil
}

// Reserve takes one seat. It fails with ErrCapacityExhausted when the course is full.
func (l *CapacityLedger) Reserve(ctx context.Context, tx repository.CourseTx) (models.CourseCapacity, error) {
	capacity, err := l.Snapshot(ctx, tx)
	if err != nil {
		return models.CourseCapacity{}, err
	}
	if capacity.TakenSeats >= capacity.TotalCapacity {
		return capacity, appErrors.Clone(appErrors.ErrCapacityExhausted, fmt.Sprintf("course %s is full (%d/%d)", tx.CourseID(), capacity.TakenSeats, capacity.TotalCapacity))
	}
	capacity.TakenSeats++
	return l.save(ctx, tx, capacity)
}

// Release frees one seat. Releasing an empty ledger is an invariant violation.
func (l *CapacityLedger) Release(ctx context.Context, tx repository.CourseTx) (models.CourseCapacity, error) {
	capacity, err := l.Snapshot(ctx, tx)
	if err != nil {
		return models.CourseCapacity{}, err
	}
	if capacity.TakenSeats <= 0 {
		return capacity, appErrors.Clone(appErrors.ErrLedgerEmpty, fmt.Sprintf("course %s has no taken seats to release", tx.CourseID()))
	}
	capacity.TakenSeats--
	return l.save(ctx, tx, capacity)
}

// Resize sets the total capacity. It never drops below the seats already taken.
func (l *CapacityLedger) Resize(ctx context.Context, tx repository.CourseTx, total int) (models.CourseCapacity, error) {
	if total < 0 {
		return models.CourseCapacity{}, appErrors.Clone(appErrors.ErrValidation, "total capacity must not be negative")
	}
	capacity, err := l.Snapshot(ctx, tx)
	if err != nil {
		return models.CourseCapacity{}, err
	}
	if total < capacity.TakenSeats {
		return capacity, appErrors.Clone(appErrors.ErrCapacityBelowTaken, fmt.Sprintf("course %s already has %d seats taken", tx.CourseID(), capacity.TakenSeats))
	}
	capacity.TotalCapacity = total
	return l.save(ctx, tx, capacity)
}

func (l *CapacityLedger) save(ctx context.Context, tx repository.CourseTx, capacity models.CourseCapacity) (models.CourseCapacity, error) {
	capacity.UpdatedAt = l.now()
	if err := tx.SaveCapacity(ctx, capacity); err != nil {
		return models.CourseCapacity{}, fmt.Errorf("save capacity: %w", err)
	}
	return capacity, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
