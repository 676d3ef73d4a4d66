package domain

import "time"

// Session records one authenticated period for an account. A session
// is created active and can only transition to ended; there is no
// reverse transition.
type Session struct {
	ID        string
	AccountID string
	Active    bool
	CreatedAt time.Time
	EndedAt   *time.Time
}
