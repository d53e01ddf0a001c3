// Package writer persists stream events to Postgres in batches.
//
// A Writer drains one dispatcher buffer and queues a row per event into
// orderbook_snapshots, orderbook_deltas, trades or fills. Rows are flushed
// when a batch fills or on a timer, as a single pgx.Batch of
// INSERT ... ON CONFLICT DO NOTHING statements, so replays are harmless.
// All writes are append-only.
package writer
