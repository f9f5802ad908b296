package models

import "time"

// EnrollmentStatus represents the lifecycle of a (student, course) enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. NONE is never stored; it reports the absence of any record.
const (
	EnrollmentStatusNone       EnrollmentStatus = "NONE"
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
)

// Active reports whether the status blocks a new enrollment attempt.
func (s EnrollmentStatus) Active() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusWaitlisted
}

// EnrollmentRecord is one entry of the enrollment log. Records are never deleted.
type EnrollmentRecord struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	StatusChangedAt time.Time        `db:"status_changed_at" json:"status_changed_at"`
}

// CourseCapacity is the seat ledger of one course.
type CourseCapacity struct {
	CourseID      string    `db:"course_id" json:"course_id"`
	TotalCapacity int       `db:"total_capacity" json:"total_capacity"`
	TakenSeats    int       `db:"taken_seats" json:"taken_seats"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Available returns the number of free seats.
func (c CourseCapacity) Available() int {
	if c.TakenSeats >= c.TotalCapacity {
		return 0
	}
	return c.TotalCapacity - c.TakenSeats
}

// WaitlistEntry is a queued student, ordered by (EnqueuedAt, Sequence).
type WaitlistEntry struct {
	CourseID   string    `db:"course_id" json:"course_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Sequence   int64     `db:"seq" json:"sequence"`
	EnqueuedAt time.Time `db:"enqueued_at" json:"enqueued_at"`
}

// ValidationOutcome is the verdict of a validation rule or the whole pipeline.
type ValidationOutcome struct {
	Valid  bool   `json:"valid"`
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Pass is the outcome of a satisfied rule.
func Pass() ValidationOutcome {
	return ValidationOutcome{Valid: true}
}

// Fail builds a failing outcome attributed to rule.
func Fail(rule, reason string) ValidationOutcome {
	return ValidationOutcome{Valid: false, Rule: rule, Reason: reason}
}

// EnrollmentOutcome is returned by admission operations.
type EnrollmentOutcome struct {
	StudentID        string            `json:"student_id"`
	CourseID         string            `json:"course_id"`
	Status           EnrollmentStatus  `json:"status"`
	Record           *EnrollmentRecord `json:"record,omitempty"`
	WaitlistPosition int               `json:"waitlist_position,omitempty"`
	Promoted         []string          `json:"promoted,omitempty"`
	Capacity         *CourseCapacity   `json:"capacity,omitempty"`
}

// EnrollmentStatusView answers status queries with the record history.
type EnrollmentStatusView struct {
	StudentID string             `json:"student_id"`
	CourseID  string             `json:"course_id"`
	Status    EnrollmentStatus   `json:"status"`
	History   []EnrollmentRecord `json:"history"`
}

// CourseRoster is a consistent view of a course's seats and queue.
type CourseRoster struct {
	Capacity CourseCapacity     `json:"capacity"`
	Enrolled []EnrollmentRecord `json:"enrolled"`
	Waitlist []WaitlistEntry    `json:"waitlist"`
}
