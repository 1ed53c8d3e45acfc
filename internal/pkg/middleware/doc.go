// Package middleware provides HTTP middleware for the fairrank server.
//
// Available middleware:
//   - RateLimiter: per-client rate limiting using a token bucket
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{RequestsPerSecond: 50})
//	defer rl.Close()
//	handler = rl.Middleware(handler)
package middleware
