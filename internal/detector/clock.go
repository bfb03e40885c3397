package detector

import (
	"time"
)

// Clock is the time source used by the Detector for garbage collection.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock reads the real wall clock.
var SystemClock Clock = systemClock{}

// FixedClock always returns the same instant. Detector.SetNow installs one
// to make garbage collection deterministic.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
