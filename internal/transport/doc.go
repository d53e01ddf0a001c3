// Package transport issues signed HTTP requests to the Kalshi REST API.
//
// Every attempt is signed with a fresh timestamp, gated by a token-bucket
// rate limiter, and retried with exponential backoff plus jitter when the
// failure is transient (network error, 429, 5xx) and the policy allows it.
package transport
