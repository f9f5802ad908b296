package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// StudentRepository serves student academic data from the mirror tables.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) ensureStudent(ctx context.Context, studentID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, studentID); err != nil {
		return fmt.Errorf("check student: %w", err)
	}
	if !exists {
		return fmt.Errorf("get student %s: %w", studentID, sql.ErrNoRows)
	}
	return nil
}

// CompletedGrades lists the student's finished courses and grades.
func (r *StudentRepository) CompletedGrades(ctx context.Context, studentID string) ([]models.CompletedGrade, error) {
	if err := r.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	var grades []models.CompletedGrade
	const query = `SELECT course_id, grade FROM student_grades WHERE student_id = $1 ORDER BY course_id`
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// ActiveEnrollments lists the student's live enrollments. Schedules are left
// empty for the caller to resolve through the course directory.
func (r *StudentRepository) ActiveEnrollments(ctx context.Context, studentID string) ([]models.ActiveEnrollment, error) {
	var enrollments []models.ActiveEnrollment
	const query = `SELECT course_id, status FROM enrollment_records
WHERE student_id = $1 AND status IN ('ENROLLED', 'WAITLISTED')
ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// Holds lists the student's active registration holds.
func (r *StudentRepository) Holds(ctx context.Context, studentID string) ([]models.Hold, error) {
	var holds []models.Hold
	const query = `SELECT code, reason, active FROM student_holds WHERE student_id = $1 AND active = TRUE ORDER BY code`
	if err := r.db.SelectContext(ctx, &holds, query, studentID); err != nil {
		return nil, fmt.Errorf("list student holds: %w", err)
	}
	return holds, nil
}
