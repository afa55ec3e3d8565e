// Package ratelimit gates every request to the attestation authority behind
// a single process-wide token bucket. The authority enforces a hard ceiling
// of roughly 35 requests per second and answers bursts above it with a
// multi-minute lockout, so the bucket defaults sit safely below that line.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by all attestation authority callers in
// the process. It is safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a limiter refilling at ratePerSecond with the given burst
// capacity. The bucket starts full.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Acquire blocks until one token is available or the context is done.
// Exactly one token is consumed per successful return.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
