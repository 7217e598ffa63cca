package middleware

import (
	"net/http"
	"sync"
	"time"

	"libraryhub/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// SubmitLimiter throttles loan request submissions per requester.
type SubmitLimiter struct {
	mu         sync.Mutex
	limiters   map[uint]*limiterEntry
	every      rate.Limit
	burst      int
	idleTTL    time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSubmitLimiter allows perMinute submissions per user with the given burst.
func NewSubmitLimiter(perMinute, burst int) *SubmitLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &SubmitLimiter{
		limiters:   make(map[uint]*limiterEntry),
		every:      rate.Every(time.Minute / time.Duration(perMinute)),
		burst:      burst,
		idleTTL:    10 * time.Minute,
		sweepEvery: time.Minute,
		now:        time.Now,
	}
}

// Allow reports whether userID may submit now.
func (l *SubmitLimiter) Allow(userID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.sweepEvery {
		l.sweep(now)
	}

	e, ok := l.limiters[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than idleTTL. Callers hold mu.
func (l *SubmitLimiter) sweep(now time.Time) {
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// Middleware must run after RequireAuth.
func (l *SubmitLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Next()
			return
		}
		if !l.Allow(actor.ID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error(http.StatusTooManyRequests, "Too many loan requests, try again later"))
			return
		}
		c.Next()
	}
}
