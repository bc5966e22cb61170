package queue

import (
	"math"
	"time"
)

const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = time.Hour
)

// Exponential doubles the delay each attempt: Base * 2^(attempt-1), capped
// at Max when Max > 0. Attempt is the 1-based number of the attempt that
// just failed.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := e.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
