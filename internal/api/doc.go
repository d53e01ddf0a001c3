// Package api is a typed wrapper over the signed REST transport.
//
// REST endpoints:
//   - Production: https://api.elections.kalshi.com/trade-api/v2
//   - Demo: https://demo-api.kalshi.co/trade-api/v2
//
// Response bodies that fail to decode are reported as kerr parse errors;
// every other failure is whatever the transport returned.
package api
