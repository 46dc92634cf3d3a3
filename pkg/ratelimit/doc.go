// Package ratelimit provides client-side rate limiting for the publishing
// API.
//
// The destination enforces its own limits server-side and answers 429 when
// they are exceeded; the limiter here spaces uploads out so runs rarely hit
// that wall in the first place. Reactive handling of 429 answers lives in
// the publisher's retry loop, not here.
//
// Interface:
//
// Rate limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed
//   - Wait(ctx) error - Block until a request is allowed or ctx ends
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// Token bucket: 10 posts per minute
//	limiter := ratelimit.NewTokenBucket(10, time.Minute)
//
//	if err := limiter.Wait(ctx); err != nil {
//		return err // cancelled while waiting
//	}
//	publish()
package ratelimit
