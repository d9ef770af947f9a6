// Package events carries lesson lifecycle notifications out of the booking core.
//
// Events are emitted only after the owning transaction commits. Delivery is
// best effort: a lost event never rolls back a booking.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

// Type names a lesson event. It doubles as the broker routing key suffix.
type Type string

const (
	LessonBooked        Type = "lesson.booked"
	LessonCancelled     Type = "lesson.cancelled"
	LessonStatusChanged Type = "lesson.status_changed"
	LessonCompleted     Type = "lesson.completed"
)

// LessonEvent is the payload published for every lesson change.
type LessonEvent struct {
	ID             string              `json:"id"`
	Type           Type                `json:"type"`
	LessonID       string              `json:"lesson_id"`
	TutorID        string              `json:"tutor_id"`
	StudentID      string              `json:"student_id"`
	Status         models.LessonStatus `json:"status"`
	PreviousStatus models.LessonStatus `json:"previous_status,omitempty"`
	StartsAt       time.Time           `json:"starts_at"`
	Refunded       bool                `json:"refunded,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// NewLessonEvent builds an event describing lesson as it is now.
func NewLessonEvent(eventType Type, lesson models.Lesson, previous models.LessonStatus, at time.Time) LessonEvent {
	return LessonEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		LessonID:       lesson.ID,
		TutorID:        lesson.TutorID,
		StudentID:      lesson.StudentID,
		Status:         lesson.Status,
		PreviousStatus: previous,
		StartsAt:       lesson.StartsAt,
		Refunded:       lesson.Refunded,
		OccurredAt:     at.UTC(),
	}
}

// ForTransition picks the event type for a status change.
func ForTransition(to models.LessonStatus) Type {
	switch to {
	case models.LessonStatusCancelled:
		return LessonCancelled
	case models.LessonStatusCompleted:
		return LessonCompleted
	default:
		return LessonStatusChanged
	}
}
