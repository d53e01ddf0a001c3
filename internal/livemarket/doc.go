// Package livemarket reconstructs top-of-book and last-trade state per
// market from the stream's typed events.
//
// NO bids at price P are stored as YES asks at 100-P, so every book is
// expressed from the YES side. Levels with non-positive quantity are never
// stored. Reads return copies and are safe from any goroutine while the
// session's service goroutine applies events.
package livemarket
