// Package market tracks which markets are tradable.
//
// A Registry loads the tradable set over REST on Start, reconciles it on an
// interval and applies market_lifecycle events from the stream between
// reconciliations. Additions and removals are published on Changes so a
// consumer can adjust its subscriptions.
package market
