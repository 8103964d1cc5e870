package middlewares

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeremiapane/omnipos/utils"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per second per IP with the given
// burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*visitor),
	}
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = now

	// forget idle clients
	for k, other := range rl.limiters {
		if now.Sub(other.lastSeen) > 10*time.Minute {
			delete(rl.limiters, k)
		}
	}
	return v.limiter
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.get(c.ClientIP()).Allow() {
			utils.RespondReason(c, http.StatusTooManyRequests, "RateLimited", errors.New("too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
