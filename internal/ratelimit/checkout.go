package ratelimit

import (
	"context"
	"time"
)

// CheckoutLimiter throttles checkout session creation per client IP.
// A nil limiter allows everything; Redis being down fails open so an
// infrastructure blip cannot stop sales.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCheckoutLimiter(bucket *TokenBucket, rate float64, burst int) *CheckoutLimiter {
	if bucket == nil {
		return nil
	}
	return &CheckoutLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *CheckoutLimiter) Allow(ctx context.Context, clientIP string) (bool, time.Duration) {
	if l == nil || l.bucket == nil {
		return true, 0
	}
	res, err := l.bucket.Allow(ctx, "ratelimit:checkout:"+clientIP, l.rate, l.burst)
	if err != nil {
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}
