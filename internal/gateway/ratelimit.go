package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor is the token bucket tracked for one client address.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles guestbook requests per client IP. Submissions are
// asynchronous and cheap to issue, so without a cap one client could flood
// the settlement queue; a token bucket per address keeps the node usable
// for everyone while the ledger itself stays open to all writers.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor

	stop      chan struct{}
	stopOnce  sync.Once
	sweepFreq time.Duration
	staleTTL  time.Duration
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// second with the given burst per client IP, and starts a background sweep
// that forgets addresses idle for ten minutes. Call Close on shutdown.
func NewRateLimiter(rps, burst int) *RateLimiter {
	rl := &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		visitors:  make(map[string]*visitor),
		stop:      make(chan struct{}),
		sweepFreq: 5 * time.Minute,
		staleTTL:  10 * time.Minute,
	}
	go rl.sweep()
	return rl
}

// Middleware returns the Gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}

// Close stops the background sweep. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.bucket.Allow()
}

// sweep drops visitors that have been idle past the TTL so the map does not
// grow without bound on a long-lived node.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.sweepFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.staleTTL)
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}
