// Package system provides the wall clock that stamps crawl runs and orders.
package system

import "time"

// Clock implements menu.Clock in UTC, matching the timestamptz columns of
// crawl_runs and orders.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
