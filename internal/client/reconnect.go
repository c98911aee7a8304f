package client

import (
	"math/rand"
	"time"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
	jitter     = 0.25

	// maxShift keeps min<<attempt from overflowing before the cap applies.
	maxShift = 16
)

// Reconnector spaces out feed redials: the delay doubles from min up to max
// and every delay is spread by ±25% so several watchers do not redial in step.
type Reconnector struct {
	min, max time.Duration
	attempt  int
}

// NewReconnector backs off from 1s to 60s.
func NewReconnector() *Reconnector {
	return &Reconnector{min: minBackoff, max: maxBackoff}
}

// Attempts reports how many delays were handed out since the last Reset.
func (r *Reconnector) Attempts() int { return r.attempt }

// Wait sleeps for the next delay. It returns false if stopCh closed first.
func (r *Reconnector) Wait(stopCh <-chan struct{}) bool {
	t := time.NewTimer(r.nextDelay())
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stopCh:
		return false
	}
}

// Reset starts the next outage from the minimum delay again.
func (r *Reconnector) Reset() {
	r.attempt = 0
}

func (r *Reconnector) nextDelay() time.Duration {
	shift := min(r.attempt, maxShift)
	r.attempt++

	base := r.min << shift
	if base <= 0 || base > r.max {
		base = r.max
	}
	spread := time.Duration(float64(base) * jitter * (2*rand.Float64() - 1))
	return clamp(base+spread, r.min, r.max)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	switch {
	case d < lo:
		return lo
	case d > hi:
		return hi
	}
	return d
}
