package auth

import (
	"golang.org/x/time/rate"
)

// LoginLimiter throttles credential submissions process-wide
type LoginLimiter struct {
	limiter *rate.Limiter
}

// NewLoginLimiter allows perSecond attempts with the given burst.
// perSecond <= 0 disables throttling.
func NewLoginLimiter(perSecond float64, burst int) *LoginLimiter {
	if perSecond <= 0 {
		return &LoginLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether another attempt may proceed now
func (l *LoginLimiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}
