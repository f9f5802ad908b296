package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

func inCourse(t *testing.T, store *repository.MemoryAdmissionStore, courseID string, fn func(tx repository.CourseTx)) {
	t.Helper()
	_, err := store.EnsureCourse(context.Background(), courseID)
	require.NoError(t, err)
	require.NoError(t, store.WithinCourse(context.Background(), courseID, func(tx repository.CourseTx) error {
		fn(tx)
		return nil
	}))
}

func TestCapacityLedger(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAdmissionStore()
	ledger := NewCapacityLedger(newStepClock().Now)

	inCourse(t, store, "C1", func(tx repository.CourseTx) {
		_, err := ledger.Reserve(ctx, tx)
		assert.ErrorIs(t, err, appErrors.ErrCapacityExhausted, "fresh ledger has no seats")

		_, err = ledger.Release(ctx, tx)
		assert.ErrorIs(t, err, appErrors.ErrLedgerEmpty)

		capacity, err := ledger.Resize(ctx, tx, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, capacity.Available())

		for i := 0; i < 2; i++ {
			_, err = ledger.Reserve(ctx, tx)
			require.NoError(t, err)
		}
		capacity, err = ledger.Reserve(ctx, tx)
		assert.ErrorIs(t, err, appErrors.ErrCapacityExhausted)
		assert.Equal(t, 2, capacity.TakenSeats)

		_, err = ledger.Resize(ctx, tx, 1)
		assert.ErrorIs(t, err, appErrors.ErrCapacityBelowTaken)
		_, err = ledger.Resize(ctx, tx, -1)
		assert.ErrorIs(t, err, appErrors.ErrValidation)

		capacity, err = ledger.Release(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, 1, capacity.TakenSeats)
		assert.False(t, capacity.UpdatedAt.IsZero())

		capacity, err = ledger.Resize(ctx, tx, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, capacity.Available())
	})
}

func TestEnrollmentLogTransitions(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAdmissionStore()
	log := NewEnrollmentLog(newStepClock().Now)

	inCourse(t, store, "C1", func(tx repository.CourseTx) {
		_, _, err := log.RecordDrop(ctx, tx, "A")
		assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)

		rec, err := log.RecordWaitlist(ctx, tx, "A")
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusWaitlisted, rec.Status)

		_, err = log.RecordEnroll(ctx, tx, "A")
		assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)

		promoted, err := log.Promote(ctx, tx, "A")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, promoted.ID)
		assert.Equal(t, models.EnrollmentStatusEnrolled, promoted.Status)

		_, err = log.Promote(ctx, tx, "A")
		assert.ErrorIs(t, err, appErrors.ErrNotWaitlisted)

		dropped, prior, err := log.RecordDrop(ctx, tx, "A")
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusEnrolled, prior)
		assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)

		active, err := log.CurrentStatus(ctx, tx, "A")
		require.NoError(t, err)
		assert.Nil(t, active)

		_, err = log.RecordEnroll(ctx, tx, "A")
		require.NoError(t, err)
		history, err := log.History(ctx, tx, "A")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.EnrollmentStatusDropped, history[0].Status)
		assert.Equal(t, models.EnrollmentStatusEnrolled, history[1].Status)

		latest, err := log.Latest(ctx, tx, "A")
		require.NoError(t, err)
		assert.Equal(t, history[1].ID, latest.ID)
	})
}

func TestWaitlistQueueFIFO(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAdmissionStore()
	queue := NewWaitlistQueue(newStepClock().Now)

	inCourse(t, store, "C1", func(tx repository.CourseTx) {
		for _, id := range []string{"A", "B", "C"} {
			_, err := queue.Enqueue(ctx, tx, id)
			require.NoError(t, err)
		}
		_, err := queue.Enqueue(ctx, tx, "B")
		assert.ErrorIs(t, err, appErrors.ErrAlreadyQueued)

		position, err := queue.Position(ctx, tx, "C")
		require.NoError(t, err)
		assert.Equal(t, 3, position)

		removed, err := queue.Remove(ctx, tx, "B")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = queue.Remove(ctx, tx, "B")
		require.NoError(t, err)
		assert.False(t, removed)

		head, err := queue.DequeueNext(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, "A", head.StudentID)
		head, err = queue.DequeueNext(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, "C", head.StudentID)
		head, err = queue.DequeueNext(ctx, tx)
		require.NoError(t, err)
		assert.Nil(t, head)

		position, err = queue.Position(ctx, tx, "A")
		require.NoError(t, err)
		assert.Zero(t, position)
	})
}

func TestValidationPipeline(t *testing.T) {
	course := models.CourseInfo{
		ID:            "CS201",
		Prerequisites: []string{"CS101"},
		Schedule:      []models.Meeting{{Day: "TUE", Start: "13:00", End: "14:30"}},
	}
	student := models.StudentProfile{
		ID:              "S1",
		CompletedGrades: []models.CompletedGrade{{CourseID: "CS101", Grade: "B+"}},
		ActiveEnrollments: []models.ActiveEnrollment{
			{CourseID: "MA101", Status: models.EnrollmentStatusEnrolled, Schedule: []models.Meeting{{Day: "TUE", Start: "11:30", End: "13:00"}}},
			{CourseID: "PH101", Status: models.EnrollmentStatusWaitlisted, Schedule: []models.Meeting{{Day: "TUE", Start: "13:30", End: "14:00"}}},
		},
		Holds: []models.Hold{{Code: "LIBRARY", Active: false}},
	}

	pipeline := NewValidationPipeline()
	assert.Equal(t, []string{RulePrerequisites, RuleScheduleConflict, RuleHolds}, pipeline.Rules())
	assert.True(t, pipeline.Validate(student, course).Valid)

	t.Run("enrolled overlap conflicts", func(t *testing.T) {
		s := student
		s.ActiveEnrollments = append([]models.ActiveEnrollment{
			{CourseID: "EN101", Status: models.EnrollmentStatusEnrolled, Schedule: []models.Meeting{{Day: "TUE", Start: "14:00", End: "15:00"}}},
		}, student.ActiveEnrollments...)
		outcome := pipeline.Validate(s, course)
		assert.False(t, outcome.Valid)
		assert.Equal(t, RuleScheduleConflict, outcome.Rule)
		assert.Contains(t, outcome.Reason, "EN101")
	})

	t.Run("missing prerequisite fails first", func(t *testing.T) {
		s := student
		s.CompletedGrades = nil
		s.Holds = []models.Hold{{Code: "BURSAR", Active: true}}
		outcome := pipeline.Validate(s, course)
		assert.Equal(t, RulePrerequisites, outcome.Rule)
	})

	t.Run("retaken prerequisite passes on any passing grade", func(t *testing.T) {
		s := student
		s.CompletedGrades = []models.CompletedGrade{{CourseID: "CS101", Grade: "F"}, {CourseID: "CS101", Grade: "B"}}
		assert.True(t, pipeline.Validate(s, course).Valid)

		s.CompletedGrades = []models.CompletedGrade{{CourseID: "CS101", Grade: "F"}, {CourseID: "CS101", Grade: "w"}}
		outcome := pipeline.Validate(s, course)
		assert.Equal(t, RulePrerequisites, outcome.Rule)
		assert.Equal(t, "prerequisite CS101 not passed (grade w)", outcome.Reason)
	})

	t.Run("active hold", func(t *testing.T) {
		s := student
		s.Holds = []models.Hold{{Code: "BURSAR", Reason: "unpaid", Active: true}}
		outcome := pipeline.Validate(s, course)
		assert.Equal(t, RuleHolds, outcome.Rule)
		assert.Equal(t, "registration hold BURSAR: unpaid", outcome.Reason)
	})

	t.Run("custom rule", func(t *testing.T) {
		p := NewValidationPipeline()
		require.NoError(t, p.Register("quota", ValidatorFunc(func(models.StudentProfile, models.CourseInfo) models.ValidationOutcome {
			return models.ValidationOutcome{Valid: false, Reason: "quota reached"}
		})))
		assert.Error(t, p.Register("quota", ValidatorFunc(checkHolds)))
		assert.Error(t, p.Register("", ValidatorFunc(checkHolds)))

		outcome := p.Validate(student, course)
		assert.False(t, outcome.Valid)
		assert.Equal(t, "quota", outcome.Rule)
	})
}

func TestMeetingsOverlapBoundaries(t *testing.T) {
	cases := []struct {
		name string
		a, b models.Meeting
		want bool
	}{
		{"touching", models.Meeting{Day: "MON", Start: "09:00", End: "10:00"}, models.Meeting{Day: "MON", Start: "10:00", End: "11:00"}, false},
		{"overlapping", models.Meeting{Day: "MON", Start: "09:00", End: "10:01"}, models.Meeting{Day: "MON", Start: "10:00", End: "11:00"}, true},
		{"contained", models.Meeting{Day: "MON", Start: "09:00", End: "12:00"}, models.Meeting{Day: "MON", Start: "10:00", End: "11:00"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := meetingsOverlap(tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			got, err = meetingsOverlap(tc.b, tc.a)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
