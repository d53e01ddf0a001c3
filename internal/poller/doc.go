// Package poller resyncs live market books from REST orderbook snapshots.
//
// Resyncs are requested on demand, typically from a view's sequence gap
// callback, and optionally for every tracked market on a fixed interval.
// Requests run with bounded concurrency and a per-request timeout.
package poller
