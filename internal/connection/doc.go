// Package connection implements the authenticated streaming session.
//
// Client is a single gorilla/websocket connection: it signs the handshake,
// answers pings, watches for stale connections and serializes writes.
// Session layers the protocol on top: command ids, subscribe/unsubscribe/
// update commands, decoding into router events, per-subscription sequence
// gap detection, and bounded automatic reconnection that restores active
// subscriptions.
package connection
