package service

import (
	"time"

	"github.com/noah-isme/lingo-tutor-api/internal/models"
)

// DefaultFreeCancellationWindow is the minimum notice that earns a refund.
const DefaultFreeCancellationWindow = 12 * time.Hour

// CancellationDecision is the outcome of evaluating a cancellation request.
type CancellationDecision struct {
	Refund bool
	Notice time.Duration
}

// CancellationPolicy decides whether a cancelled lesson returns its hours.
// It is pure: the same lesson and instant always produce the same decision.
type CancellationPolicy struct {
	window time.Duration
}

// NewCancellationPolicy builds a policy with the given free cancellation window.
func NewCancellationPolicy(window time.Duration) *CancellationPolicy {
	if window <= 0 {
		window = DefaultFreeCancellationWindow
	}
	return &CancellationPolicy{window: window}
}

// Window returns the configured free cancellation window.
func (p *CancellationPolicy) Window() time.Duration {
	return p.window
}

// Evaluate refunds only a scheduled lesson that is still in the future and
// cancelled with at least the configured notice. Exactly the window counts.
func (p *CancellationPolicy) Evaluate(lesson models.Lesson, at time.Time) CancellationDecision {
	notice := lesson.StartsAt.Sub(at)
	decision := CancellationDecision{Notice: notice}
	if lesson.Status != models.LessonStatusScheduled {
		return decision
	}
	if !lesson.StartsAt.After(at) {
		return decision
	}
	decision.Refund = notice >= p.window
	return decision
}
