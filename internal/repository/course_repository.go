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

// CourseRepository serves course metadata from the catalog mirror tables.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetCourse loads a course with its weekly schedule and prerequisites.
func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error) {
	var course models.CourseInfo
	const courseQuery = `SELECT id, code, name, department FROM courses WHERE id = $1`
	if err := r.db.GetContext(ctx, &course, courseQuery, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get course %s: %w", courseID, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	const meetingQuery = `SELECT day, start_time, end_time FROM course_meetings WHERE course_id = $1 ORDER BY day, start_time`
	if err := r.db.SelectContext(ctx, &course.Schedule, meetingQuery, courseID); err != nil {
		return nil, fmt.Errorf("list course meetings: %w", err)
	}

	const prereqQuery = `SELECT prerequisite_id FROM course_prerequisites WHERE course_id = $1 ORDER BY prerequisite_id`
	if err := r.db.SelectContext(ctx, &course.Prerequisites, prereqQuery, courseID); err != nil {
		return nil, fmt.Errorf("list course prerequisites: %w", err)
	}

	return &course, nil
}

// NotifyCapacityChanged records the last reported seat count on the course row.
func (r *CourseRepository) NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error {
	const query = `UPDATE courses SET reported_taken_seats = $2, capacity_reported_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, courseID, takenSeats, time.Now().UTC()); err != nil {
		return fmt.Errorf("record course capacity: %w", err)
	}
	return nil
}
