package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock reads so time-dependent behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the system wall clock in UTC.
func NewSystemClock() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
