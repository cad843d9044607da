package inference

import (
	"math/rand/v2"
	"time"
)

const jitterFactor = 0.2

// backoff computes exponential delays with ±20% jitter.
type backoff struct {
	base   time.Duration
	max    time.Duration
	random func() float64
}

func newBackoff(base, max time.Duration) backoff {
	return backoff{base: base, max: max, random: rand.Float64}
}

// delay returns the wait before retry number attempt+1 (attempt is zero based).
func (b backoff) delay(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	if b.random == nil {
		return d
	}
	jitter := (b.random()*2 - 1) * jitterFactor
	return time.Duration(float64(d) * (1 + jitter))
}
