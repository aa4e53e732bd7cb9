package domain

import "time"

// Clock supplies "today" to the ledger and the fine calculator so
// date-dependent logic stays deterministic under test.
type Clock interface {
	Today() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Today() time.Time { return DateOf(time.Now()) }

// FixedClock always reports the same day.
type FixedClock struct {
	Day time.Time
}

func (c FixedClock) Today() time.Time { return DateOf(c.Day) }
