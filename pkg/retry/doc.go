// Package retry provides exponential backoff and retry logic for handling
// transient failures in network operations, particularly feed page fetches
// and media downloads.
//
// Features:
//   - Multiple backoff strategies (exponential, constant)
//   - Jitter to avoid thundering herd problems
//   - Context support for cancellation
//   - Configurable retry predicates
//   - Integration with the pipeline's typed errors
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(func() error {
//		return client.FetchPage(ctx, token)
//	}, nil)
//
//	// Custom configuration
//	cfg := &retry.Config{
//		MaxAttempts: 5,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:    2 * time.Second,
//			MaxDelay:     30 * time.Second,
//			Multiplier:   2.0,
//			JitterFactor: 0.1,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  logger.GetLogger(),
//	}
//	err := retry.Do(operation, cfg)
//
//	// Operations that return a value
//	page, err := retry.DoWithResult(func() (*Page, error) {
//		return client.FetchPage(ctx, token)
//	}, cfg)
//
// DefaultRetryIf consults the error's type: network failures, server errors
// and rate limits are retried; credential rejections, missing media and
// store failures are not. Callers with stricter needs pass their own
// predicate, as the media fetcher does for its single corrupt-download
// retry.
package retry
