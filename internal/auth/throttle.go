package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type attempt struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginThrottle limits how frequently credentials may be tried for a single
// identifier. Entries expire after the provided ttl when no longer used.
type LoginThrottle struct {
	mu       sync.Mutex
	attempts map[string]*attempt
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewLoginThrottle allows up to `tries` attempts per `window` with an
// additional burst capacity per identifier.
func NewLoginThrottle(tries int, window time.Duration, burst int, ttl time.Duration) *LoginThrottle {
	if tries <= 0 {
		tries = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &LoginThrottle{
		attempts: make(map[string]*attempt),
		limit:    rate.Every(window / time.Duration(tries)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether another attempt for the identifier may proceed.
func (t *LoginThrottle) Allow(identifier string) bool {
	if identifier == "" {
		identifier = "unknown"
	}

	now := t.now()

	t.mu.Lock()
	a := t.getAttemptLocked(identifier, now)
	t.gcLocked(now)
	t.mu.Unlock()

	return a.limiter.Allow()
}

// Forget drops the identifier's attempt state so its full capacity is
// available again. Called after a successful login: only failed attempts
// count toward the limit.
func (t *LoginThrottle) Forget(identifier string) {
	if identifier == "" {
		identifier = "unknown"
	}

	t.mu.Lock()
	delete(t.attempts, identifier)
	t.mu.Unlock()
}

func (t *LoginThrottle) getAttemptLocked(identifier string, now time.Time) *attempt {
	if a, ok := t.attempts[identifier]; ok {
		a.lastSeen = now
		return a
	}

	a := &attempt{limiter: rate.NewLimiter(t.limit, t.burst), lastSeen: now}
	t.attempts[identifier] = a
	return a
}

func (t *LoginThrottle) gcLocked(now time.Time) {
	for identifier, a := range t.attempts {
		if now.Sub(a.lastSeen) > t.ttl {
			delete(t.attempts, identifier)
		}
	}
}
