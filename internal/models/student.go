package models

// CompletedGrade is a finished course with its final grade.
type CompletedGrade struct {
	CourseID string `db:"course_id" json:"course_id" yaml:"course_id"`
	Grade    string `db:"grade" json:"grade" yaml:"grade"`
}

// ActiveEnrollment is a live enrollment the student holds in some course.
type ActiveEnrollment struct {
	CourseID string           `db:"course_id" json:"course_id"`
	Status   EnrollmentStatus `db:"status" json:"status"`
	Schedule []Meeting        `db:"-" json:"schedule,omitempty"`
}

// Hold blocks registration while Active.
type Hold struct {
	Code   string `db:"code" json:"code" yaml:"code"`
	Reason string `db:"reason" json:"reason" yaml:"reason"`
	Active bool   `db:"active" json:"active" yaml:"active"`
}

// StudentProfile is the snapshot handed to validators.
type StudentProfile struct {
	ID                string             `json:"id"`
	CompletedGrades   []CompletedGrade   `json:"completed_grades"`
	ActiveEnrollments []ActiveEnrollment `json:"active_enrollments"`
	Holds             []Hold             `json:"holds"`
}

// GradesFor returns every grade recorded for courseID, in transcript order.
// A retaken course appears more than once.
func (p StudentProfile) GradesFor(courseID string) []string {
	var grades []string
	for _, g := range p.CompletedGrades {
		if g.CourseID == courseID {
			grades = append(grades, g.Grade)
		}
	}
	return grades
}
