package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
	appErrors "github.com/noah-isme/lingo-tutor-api/pkg/errors"
)

// JoinPolicy bounds when participants may start a lesson.
type JoinPolicy struct {
	TutorEarlyJoin   time.Duration
	StudentEarlyJoin time.Duration
	LateJoinLimit    time.Duration
}

// DefaultJoinPolicy returns the standard 11/10 minute early join and 80 minute late limit.
func DefaultJoinPolicy() JoinPolicy {
	return JoinPolicy{
		TutorEarlyJoin:   11 * time.Minute,
		StudentEarlyJoin: 10 * time.Minute,
		LateJoinLimit:    80 * time.Minute,
	}
}

type transitionGuard func(m *LessonStateMachine, lesson models.Lesson, actor models.Actor, now time.Time) error

// LessonStateMachine validates lesson status changes. It never mutates state.
type LessonStateMachine struct {
	join  JoinPolicy
	table map[models.LessonStatus]map[models.LessonStatus]transitionGuard
}

// NewLessonStateMachine builds the machine with the given join policy.
func NewLessonStateMachine(join JoinPolicy) *LessonStateMachine {
	defaults := DefaultJoinPolicy()
	if join.TutorEarlyJoin <= 0 {
		join.TutorEarlyJoin = defaults.TutorEarlyJoin
	}
	if join.StudentEarlyJoin <= 0 {
		join.StudentEarlyJoin = defaults.StudentEarlyJoin
	}
	if join.LateJoinLimit <= 0 {
		join.LateJoinLimit = defaults.LateJoinLimit
	}

	afterStart := transitionGuard(guardStarted)
	noGuard := transitionGuard(func(*LessonStateMachine, models.Lesson, models.Actor, time.Time) error { return nil })

	return &LessonStateMachine{
		join: join,
		table: map[models.LessonStatus]map[models.LessonStatus]transitionGuard{
			models.LessonStatusScheduled: {
				models.LessonStatusInProgress:      guardJoinWindow,
				models.LessonStatusCancelled:       guardNotStarted,
				models.LessonStatusCompleted:       afterStart,
				models.LessonStatusNoShowStudent:   afterStart,
				models.LessonStatusNoShowTutor:     afterStart,
				models.LessonStatusTechnicalIssues: afterStart,
			},
			models.LessonStatusInProgress: {
				models.LessonStatusCompleted:       noGuard,
				models.LessonStatusNoShowStudent:   afterStart,
				models.LessonStatusNoShowTutor:     afterStart,
				models.LessonStatusTechnicalIssues: afterStart,
			},
		},
	}
}

// Validate returns an INVALID_TRANSITION error unless lesson may move to the target status at now.
func (m *LessonStateMachine) Validate(lesson models.Lesson, to models.LessonStatus, actor models.Actor, now time.Time) error {
	if _, err := models.ParseLessonStatus(string(to)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown lesson status")
	}
	if lesson.Status.Terminal() {
		return invalidTransition(fmt.Sprintf("lesson is already %s", lesson.Status))
	}
	guard, ok := m.table[lesson.Status][to]
	if !ok {
		return invalidTransition(fmt.Sprintf("cannot move lesson from %s to %s", lesson.Status, to))
	}
	return guard(m, lesson, actor, now)
}

// Allowed lists the statuses reachable from the lesson's current status, ignoring guards.
func (m *LessonStateMachine) Allowed(from models.LessonStatus) []models.LessonStatus {
	targets := make([]models.LessonStatus, 0, len(m.table[from]))
	for _, status := range models.LessonStatuses {
		if _, ok := m.table[from][status]; ok {
			targets = append(targets, status)
		}
	}
	return targets
}

// JoinWindow returns the interval during which role may start the lesson.
// Admins and system actors share the tutor window.
func (m *LessonStateMachine) JoinWindow(lesson models.Lesson, role models.UserRole) (opens, closes time.Time) {
	early := m.join.TutorEarlyJoin
	if role == models.RoleStudent {
		early = m.join.StudentEarlyJoin
	}
	return lesson.StartsAt.Add(-early), lesson.StartsAt.Add(m.join.LateJoinLimit)
}

func guardJoinWindow(m *LessonStateMachine, lesson models.Lesson, actor models.Actor, now time.Time) error {
	opens, closes := m.JoinWindow(lesson, actor.Role)
	if now.Before(opens) {
		return invalidTransition("lesson cannot be joined yet")
	}
	if now.After(closes) {
		return invalidTransition("join window has closed")
	}
	return nil
}

func guardNotStarted(_ *LessonStateMachine, lesson models.Lesson, _ models.Actor, now time.Time) error {
	if now.After(lesson.StartsAt) {
		return invalidTransition("")
	}
	return nil
}

func guardStarted(_ *LessonStateMachine, lesson models.Lesson, _ models.Actor, now time.Time) error {
	if now.Before(lesson.StartsAt) {
		return invalidTransition("lesson has not started yet")
	}
	return nil
}

func invalidTransition(message string) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, message)
}
