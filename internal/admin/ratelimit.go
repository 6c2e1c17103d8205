package admin

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Route groups share a bucket per client. Reads, raw calls, broadcasts and
// provider actions are limited apart so a burst of one cannot starve another.
const (
	groupRead      = "read"
	groupCall      = "call"
	groupBroadcast = "broadcast"
	groupAction    = "action"
)

// routeGroup maps a route template to its bucket group.
func routeGroup(method, route string) string {
	switch {
	case route == "/call":
		return groupCall
	case route == "/broadcast":
		return groupBroadcast
	case strings.Contains(route, "/actions/"):
		return groupAction
	case method == "GET" || method == "HEAD":
		return groupRead
	default:
		return groupAction
	}
}

type bucketKey struct {
	client string
	group  string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RouteLimiter keeps one token bucket per client and route group. Buckets
// idle longer than idleTTL are swept at most once per idleTTL.
type RouteLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[bucketKey]*bucket
	lastSweep time.Time
}

// NewRouteLimiter returns nil when rps or burst is not positive. A nil
// limiter allows everything.
func NewRouteLimiter(rps float64, burst int, idleTTL time.Duration) *RouteLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RouteLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Allow takes one token from the client's bucket for group. Requests without
// a client address are not limited.
func (l *RouteLimiter) Allow(client, group string, now time.Time) bool {
	if l == nil {
		return true
	}
	client = strings.TrimSpace(client)
	if client == "" {
		return true
	}
	key := bucketKey{client: client, group: group}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *RouteLimiter) sweep(now time.Time) {
	if l.lastSweep.IsZero() {
		l.lastSweep = now
		return
	}
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Buckets reports how many client/group buckets are live.
func (l *RouteLimiter) Buckets() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
