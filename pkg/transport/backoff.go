package transport

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: Min doubled per attempt, randomised by
// ±Jitter, never above Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff matches the Socket.IO client policy used by the web client.
var DefaultBackoff = Backoff{Min: 500 * time.Millisecond, Max: 3 * time.Second, Jitter: 0.5}

// Duration returns the wait before reconnect attempt n (zero based).
func (b Backoff) Duration(attempt int) time.Duration {
	if b.Min <= 0 {
		return 0
	}
	ms := float64(b.Min) * math.Pow(2, float64(attempt))
	if b.Jitter > 0 {
		dev := rand.Float64() * b.Jitter * ms
		if rand.IntN(2) == 0 {
			ms -= dev
		} else {
			ms += dev
		}
	}
	if b.Max > 0 && ms > float64(b.Max) {
		return b.Max
	}
	if ms < 0 {
		return 0
	}
	return time.Duration(ms)
}
