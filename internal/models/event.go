package models

import "time"

// AdmissionEventType names a domain event emitted after commit.
type AdmissionEventType string

// Admission event types.
const (
	EventEnrollmentConfirmed  AdmissionEventType = "EnrollmentConfirmed"
	EventWaitlisted           AdmissionEventType = "Waitlisted"
	EventPromotedFromWaitlist AdmissionEventType = "PromotedFromWaitlist"
	EventDropped              AdmissionEventType = "Dropped"
)

// AdmissionEvent is delivered to notification sinks.
type AdmissionEvent struct {
	ID         string             `json:"id"`
	Type       AdmissionEventType `json:"type"`
	StudentID  string             `json:"student_id"`
	CourseID   string             `json:"course_id"`
	Reason     string             `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}
