package events

import (
	"context"
	"time"
)

// StatsStore increments tutor counters.
type StatsStore interface {
	IncrementCompleted(ctx context.Context, tutorID string, at time.Time) error
}

// TutorStatsHandler bumps the completed lesson counter of the tutor. It runs
// outside the transaction that completed the lesson.
func TutorStatsHandler(store StatsStore) Handler {
	return HandlerFunc(func(ctx context.Context, event LessonEvent) error {
		if event.Type != LessonCompleted {
			return nil
		}
		return store.IncrementCompleted(ctx, event.TutorID, event.OccurredAt)
	})
}
