package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time so billing dates stay testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Today truncates the clock's current instant to a UTC calendar day.
func Today(c Clock) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
