package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// LessonStatus is the closed set of lesson lifecycle states.
type LessonStatus string

const (
	LessonStatusScheduled       LessonStatus = "scheduled"
	LessonStatusInProgress      LessonStatus = "in_progress"
	LessonStatusCompleted       LessonStatus = "completed"
	LessonStatusCancelled       LessonStatus = "cancelled"
	LessonStatusNoShowStudent   LessonStatus = "no_show_student"
	LessonStatusNoShowTutor     LessonStatus = "no_show_tutor"
	LessonStatusTechnicalIssues LessonStatus = "technical_issues"
)

// LessonStatuses lists every declared status.
var LessonStatuses = []LessonStatus{
	LessonStatusScheduled,
	LessonStatusInProgress,
	LessonStatusCompleted,
	LessonStatusCancelled,
	LessonStatusNoShowStudent,
	LessonStatusNoShowTutor,
	LessonStatusTechnicalIssues,
}

// ParseLessonStatus rejects anything outside the declared statuses.
func ParseLessonStatus(raw string) (LessonStatus, error) {
	for _, s := range LessonStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown lesson status %q", raw)
}

// Terminal reports whether no further status change is allowed.
func (s LessonStatus) Terminal() bool {
	switch s {
	case LessonStatusCompleted, LessonStatusCancelled, LessonStatusNoShowStudent, LessonStatusNoShowTutor, LessonStatusTechnicalIssues:
		return true
	}
	return false
}

// UnmarshalJSON enforces the closed enum at the API boundary.
func (s *LessonStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseLessonStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Lesson is a booked hour-long (or multi-hour) lesson between a tutor and a student.
type Lesson struct {
	ID                  string       `db:"id" json:"id"`
	TutorID             string       `db:"tutor_id" json:"tutor_id"`
	StudentID           string       `db:"student_id" json:"student_id"`
	PackageAssignmentID *string      `db:"package_assignment_id" json:"package_assignment_id,omitempty"`
	Date                time.Time    `db:"lesson_date" json:"date"`
	StartHour           int          `db:"start_hour" json:"start_hour"`
	StartsAt            time.Time    `db:"starts_at" json:"starts_at"`
	DurationMinutes     int          `db:"duration_minutes" json:"duration_minutes"`
	LessonType          string       `db:"lesson_type" json:"lesson_type"`
	Topic               string       `db:"topic" json:"topic"`
	Notes               string       `db:"notes" json:"notes"`
	Status              LessonStatus `db:"status" json:"status"`
	MeetingURL          *string      `db:"meeting_url" json:"meeting_url,omitempty"`
	Refunded            bool         `db:"refunded" json:"refunded"`
	CancelledBy         *string      `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt         *time.Time   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason  *string      `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	StartedAt           *time.Time   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt         *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	TutorFeedback       *string      `db:"tutor_feedback" json:"tutor_feedback,omitempty"`
	StudentFeedback     *string      `db:"student_feedback" json:"student_feedback,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// DurationHours is the number of whole hours the lesson occupies.
func (l Lesson) DurationHours() int {
	return l.DurationMinutes / 60
}

// HourRange is the availability range the lesson occupies.
func (l Lesson) HourRange() HourRange {
	return HourRange{From: l.StartHour, To: l.StartHour + l.DurationHours()}
}

// EndsAt returns the nominal end of the lesson.
func (l Lesson) EndsAt() time.Time {
	return l.StartsAt.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// LessonStatusHistory is one immutable audit row per accepted transition.
type LessonStatusHistory struct {
	ID              int64         `db:"id" json:"id"`
	LessonID        string        `db:"lesson_id" json:"lesson_id"`
	Status          LessonStatus  `db:"status" json:"status"`
	PreviousStatus  *LessonStatus `db:"previous_status" json:"previous_status,omitempty"`
	Reason          string        `db:"reason" json:"reason"`
	ChangedByRole   UserRole      `db:"changed_by_role" json:"changed_by_role"`
	ChangedByUserID string        `db:"changed_by_user_id" json:"changed_by_user_id"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// LessonStatusUpdate carries the column changes of one transition.
type LessonStatusUpdate struct {
	LessonID           string
	From               LessonStatus
	To                 LessonStatus
	At                 time.Time
	Refunded           bool
	CancelledBy        *string
	CancellationReason *string
}

// CancellationResult is returned by the cancel operation.
type CancellationResult struct {
	Lesson   *Lesson `json:"lesson"`
	Refunded bool    `json:"refunded"`
}

// TutorStats is maintained by the statistics consumer outside the booking transaction.
type TutorStats struct {
	TutorID          string    `db:"tutor_id" json:"tutor_id"`
	LessonsCompleted int       `db:"lessons_completed" json:"lessons_completed"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
