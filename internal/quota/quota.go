// Package quota enforces the free tier's daily transaction allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/Juls95/Trinit-AI/internal/models"
)

// FreeLimitMessage is shown when a free user runs out of daily transactions.
const FreeLimitMessage = "Free accounts are limited to %d transactions per day. Upgrade to Trinit Pro for unlimited transactions."

// Counter counts transactions a user created since a moment.
type Counter interface {
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// Checker decides whether a user may create another transaction today.
type Checker struct {
	counter Counter
	limit   int64
	now     func() time.Time
	loc     *time.Location
}

// New returns a checker allowing limit transactions per calendar day in loc
// for unpaid users. Paid users are never limited.
func New(counter Counter, limit int64, loc *time.Location) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	return &Checker{counter: counter, limit: limit, now: time.Now, loc: loc}
}

// WithClock replaces the time source.
func (q *Checker) WithClock(now func() time.Time) *Checker {
	cp := *q
	cp.now = now
	return &cp
}

// Limit is the daily allowance for free users.
func (q *Checker) Limit() int64 {
	return q.limit
}

// StartOfDay returns midnight of t's calendar day in the checker's location.
func (q *Checker) StartOfDay(t time.Time) time.Time {
	t = t.In(q.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, q.loc)
}

// DayStart is the start of the current quota day.
func (q *Checker) DayStart() time.Time {
	return q.StartOfDay(q.now())
}

// Allow reports whether u may create one more transaction now.
func (q *Checker) Allow(ctx context.Context, u *models.User) (bool, error) {
	if u.IsPaid {
		return true, nil
	}
	n, err := q.counter.CountCreatedSince(ctx, u.ID, q.DayStart())
	if err != nil {
		return false, fmt.Errorf("check quota: %w", err)
	}
	return n < q.limit, nil
}

// Message renders FreeLimitMessage for this checker's limit.
func (q *Checker) Message() string {
	return fmt.Sprintf(FreeLimitMessage, q.limit)
}
