package dto

import "github.com/noah-isme/course-admission-api/internal/models"

// EnrollRequest asks for a seat in a course. CourseID comes from the route.
type EnrollRequest struct {
	CourseID  string `json:"-" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// DropRequest withdraws a student from a course or its waitlist.
type DropRequest struct {
	CourseID  string `json:"-" validate:"required"`
	StudentID string `json:"-" validate:"required"`
}

// SetCapacityRequest resizes a course's seat ledger.
type SetCapacityRequest struct {
	CourseID      string `json:"-" validate:"required"`
	TotalCapacity *int   `json:"total_capacity" validate:"required,min=0"`
}

// WaitlistQuery pages through a course waitlist.
type WaitlistQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// WaitlistPositionResponse reports where a student stands in the queue.
// Position is nil when the student is not waitlisted.
type WaitlistPositionResponse struct {
	CourseID   string `json:"course_id"`
	StudentID  string `json:"student_id"`
	Waitlisted bool   `json:"waitlisted"`
	Position   *int   `json:"position"`
}

// CapacityResponse returns the ledger after a resize and anyone promoted by it.
type CapacityResponse struct {
	Capacity  models.CourseCapacity `json:"capacity"`
	Available int                   `json:"available"`
	Promoted  []string              `json:"promoted,omitempty"`
}
