package directory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// EnrollmentSource yields the committed live enrollments of a student.
type EnrollmentSource interface {
	ActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error)
}

type catalogCourse struct {
	models.CourseInfo `yaml:",inline"`
	Capacity          int `yaml:"capacity"`
}

// catalogHold treats a hold without an explicit active flag as active.
type catalogHold struct {
	Code   string `json:"code" yaml:"code"`
	Reason string `json:"reason" yaml:"reason"`
	Active *bool  `json:"active" yaml:"active"`
}

func (h catalogHold) hold() models.Hold {
	return models.Hold{Code: h.Code, Reason: h.Reason, Active: h.Active == nil || *h.Active}
}

type catalogStudent struct {
	ID     string                  `yaml:"id"`
	Grades []models.CompletedGrade `yaml:"grades"`
	Holds  []catalogHold           `yaml:"holds"`
}

type catalogFile struct {
	Courses  []catalogCourse  `yaml:"courses"`
	Students []catalogStudent `yaml:"students"`
}

// CapacitySeed is the initial capacity declared for a course in the catalog.
type CapacitySeed struct {
	CourseID string
	Capacity int
}

// StaticDirectory serves course and student data from a YAML catalog. Live
// enrollments are read from the admission store so they always reflect
// committed admissions.
type StaticDirectory struct {
	courses     map[string]catalogCourse
	students    map[string]catalogStudent
	order       []string
	enrollments EnrollmentSource

	mu       sync.Mutex
	reported map[string]int
}

// LoadStaticDirectory parses the catalog at path.
func LoadStaticDirectory(path string, enrollments EnrollmentSource) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseStaticDirectory(raw, enrollments)
}

// ParseStaticDirectory builds a directory from YAML bytes.
func ParseStaticDirectory(raw []byte, enrollments EnrollmentSource) (*StaticDirectory, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	dir := &StaticDirectory{
		courses:     make(map[string]catalogCourse, len(file.Courses)),
		students:    make(map[string]catalogStudent, len(file.Students)),
		enrollments: enrollments,
		reported:    make(map[string]int),
	}
	for _, course := range file.Courses {
		if course.ID == "" {
			return nil, fmt.Errorf("catalog course without id")
		}
		if _, dup := dir.courses[course.ID]; dup {
			return nil, fmt.Errorf("catalog course %s declared twice", course.ID)
		}
		if course.Capacity < 0 {
			return nil, fmt.Errorf("catalog course %s has negative capacity", course.ID)
		}
		for _, meeting := range course.Schedule {
			if _, _, err := meeting.Minutes(); err != nil {
				return nil, fmt.Errorf("catalog course %s: %w", course.ID, err)
			}
		}
		dir.courses[course.ID] = course
		dir.order = append(dir.order, course.ID)
	}
	for _, student := range file.Students {
		if student.ID == "" {
			return nil, fmt.Errorf("catalog student without id")
		}
		if _, dup := dir.students[student.ID]; dup {
			return nil, fmt.Errorf("catalog student %s declared twice", student.ID)
		}
		dir.students[student.ID] = student
	}
	return dir, nil
}

// Seeds returns the declared capacities in catalog order.
func (d *StaticDirectory) Seeds() []CapacitySeed {
	seeds := make([]CapacitySeed, 0, len(d.order))
	for _, id := range d.order {
		seeds = append(seeds, CapacitySeed{CourseID: id, Capacity: d.courses[id].Capacity})
	}
	return seeds
}

// GetCourse returns a copy of the catalog entry.
func (d *StaticDirectory) GetCourse(ctx context.Context, courseID string) (*models.CourseInfo, error) {
	course, ok := d.courses[courseID]
	if !ok {
		return nil, fmt.Errorf("get course %s: %w", courseID, sql.ErrNoRows)
	}
	info := course.CourseInfo
	info.Schedule = append([]models.Meeting(nil), course.Schedule...)
	info.Prerequisites = append([]string(nil), course.Prerequisites...)
	return &info, nil
}

// NotifyCapacityChanged remembers the last reported seat count.
func (d *StaticDirectory) NotifyCapacityChanged(ctx context.Context, courseID string, takenSeats int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reported[courseID] = takenSeats
	return nil
}

// ReportedTakenSeats returns the last seat count reported for courseID.
func (d *StaticDirectory) ReportedTakenSeats(courseID string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	taken, ok := d.reported[courseID]
	return taken, ok
}

func (d *StaticDirectory) student(studentID string) (catalogStudent, error) {
	student, ok := d.students[studentID]
	if !ok {
		return catalogStudent{}, fmt.Errorf("get student %s: %w", studentID, sql.ErrNoRows)
	}
	return student, nil
}

// CompletedGrades returns the catalog transcript of the student.
func (d *StaticDirectory) CompletedGrades(ctx context.Context, studentID string) ([]models.CompletedGrade, error) {
	student, err := d.student(studentID)
	if err != nil {
		return nil, err
	}
	return append([]models.CompletedGrade(nil), student.Grades...), nil
}

// ActiveEnrollments returns committed live enrollments with catalog schedules attached.
func (d *StaticDirectory) ActiveEnrollments(ctx context.Context, studentID string) ([]models.ActiveEnrollment, error) {
	if _, err := d.student(studentID); err != nil {
		return nil, err
	}
	if d.enrollments == nil {
		return nil, nil
	}
	records, err := d.enrollments.ActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	result := make([]models.ActiveEnrollment, 0, len(records))
	for _, rec := range records {
		enrollment := models.ActiveEnrollment{CourseID: rec.CourseID, Status: rec.Status}
		if course, ok := d.courses[rec.CourseID]; ok {
			enrollment.Schedule = append([]models.Meeting(nil), course.Schedule...)
		}
		result = append(result, enrollment)
	}
	return result, nil
}

// Holds returns the student's active holds.
func (d *StaticDirectory) Holds(ctx context.Context, studentID string) ([]models.Hold, error) {
	student, err := d.student(studentID)
	if err != nil {
		return nil, err
	}
	var holds []models.Hold
	for _, hold := range student.Holds {
		if !hold.hold().Active {
			continue
		}
		holds = append(holds, hold.hold())
	}
	return holds, nil
}
