package chat

import "time"

// rateLimiter is a per-session sliding window over accepted chat lines.
// It is used only by the session's read loop and needs no locking.
type rateLimiter struct {
	limit      int
	window     time.Duration
	timestamps []time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 || window <= 0 {
		return &rateLimiter{}
	}
	return &rateLimiter{
		limit:      limit,
		window:     window,
		timestamps: make([]time.Time, 0, limit),
	}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	cutoff := now.Add(-r.window)
	i := 0
	for ; i < len(r.timestamps); i++ {
		if r.timestamps[i].After(cutoff) {
			break
		}
	}
	r.timestamps = r.timestamps[i:]

	if len(r.timestamps) >= r.limit {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}
