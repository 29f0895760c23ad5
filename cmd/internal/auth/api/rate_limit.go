package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ipRateLimiter is a keyed sliding-window limiter shared by the auth
// endpoints. Buckets are pruned on access and swept wholesale once per
// window so idle IPs do not accumulate.
type ipRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
	sweepAt time.Time
}

func newIPRateLimiter(limit int, window time.Duration) *ipRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &ipRateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Allow reports whether a request from key at time now is within budget.
// When denied it also returns how long until the window frees a slot.
func (l *ipRateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil || l.limit <= 0 || key == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(l.window)
	}

	cut := now.Add(-l.window)
	events := l.buckets[key]
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}

	if len(dst) >= l.limit {
		l.buckets[key] = dst
		retry := dst[0].Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return false, retry
	}

	l.buckets[key] = append(dst, now)
	return true, 0
}

func (l *ipRateLimiter) sweep(now time.Time) {
	cut := now.Add(-l.window)
	for key, events := range l.buckets {
		keep := false
		for _, t := range events {
			if t.After(cut) {
				keep = true
				break
			}
		}
		if !keep {
			delete(l.buckets, key)
		}
	}
}

func writeRateLimited(w http.ResponseWriter, code string, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, code, "too many requests")
}
