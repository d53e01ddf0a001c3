// Package router decodes WebSocket frames into typed events and fans them
// out to consumers.
//
// Decode turns one text frame into either a data Event (orderbook
// snapshot/delta, trade, fill, market lifecycle) or a Control frame
// (subscribed, unsubscribed, ok, error). Prices arrive either as integer
// cents or as "*_dollars" strings; both are normalized to cents.
//
// Dispatcher copies every event into per-consumer GrowableBuffers so that
// a live view, a database writer and a printer can each drain at their
// own pace.
package router
