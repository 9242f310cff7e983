package server

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"golang.org/x/time/rate"

	"model100/internal/router"
)

// limiterIdleTTL is how long an idle per-IP limiter is kept before it is
// swept.
const limiterIdleTTL = 10 * time.Minute

type ipLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimitMiddleware enforces per-IP session admission with a token bucket
// refilled at perSecond and holding at most burst tokens.
func RateLimitMiddleware(perSecond, burst int, logger *log.Logger) wish.Middleware {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = perSecond
	}
	if logger == nil {
		logger = log.Default()
	}

	var mu sync.Mutex
	limiters := make(map[string]*ipLimiter)
	lastSweep := time.Now()

	allow := func(ip string, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()

		if now.Sub(lastSweep) > limiterIdleTTL {
			for key, l := range limiters {
				if now.Sub(l.seen) > limiterIdleTTL {
					delete(limiters, key)
				}
			}
			lastSweep = now
		}

		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
			limiters[ip] = l
		}
		l.seen = now
		return l.limiter.AllowN(now, 1)
	}

	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			now := time.Now()
			ip := router.RemoteIP(s.RemoteAddr())
			if !allow(ip, now) {
				logger.Warn("session throttled", "event", "rate_limit_throttled", "remote_ip", ip)
				_, _ = s.Write([]byte("rate limit exceeded\n"))
				return
			}
			next(s)
		}
	}
}
