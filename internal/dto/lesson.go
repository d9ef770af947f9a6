package dto

import "github.com/noah-isme/lingo-tutor-api/internal/models"

// BookLessonRequest is the payload for booking a lesson against published availability.
type BookLessonRequest struct {
	TutorID             string  `json:"tutor_id" validate:"required"`
	StudentID           string  `json:"student_id" validate:"required"`
	Date                string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime           string  `json:"start_time" validate:"required,datetime=15:04"`
	DurationMinutes     int     `json:"duration_minutes" validate:"required,min=60,max=480"`
	PackageAssignmentID *string `json:"package_assignment_id,omitempty" validate:"omitempty,min=1"`
	LessonType          string  `json:"lesson_type" validate:"omitempty,max=50"`
	Topic               string  `json:"topic" validate:"omitempty,max=255"`
	Notes               string  `json:"notes" validate:"omitempty,max=2000"`
	MeetingURL          *string `json:"meeting_url,omitempty" validate:"omitempty,url"`
}

// CancelLessonRequest carries the cancellation reason.
type CancelLessonRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// TransitionLessonRequest asks the state machine to move a lesson to a new status.
type TransitionLessonRequest struct {
	Status models.LessonStatus `json:"status" validate:"required"`
	Reason string              `json:"reason" validate:"omitempty,max=500"`
}

// LessonFeedbackRequest stores free-text feedback after (or during) a lesson.
type LessonFeedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,max=4000"`
}

// CancelLessonResponse reports the refund outcome of a cancellation.
type CancelLessonResponse struct {
	Lesson   *models.Lesson `json:"lesson"`
	Refunded bool           `json:"refunded"`
}
