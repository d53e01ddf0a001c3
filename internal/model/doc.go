// Package model defines domain types shared by the REST layer, the stream
// decoder and the live market view.
//
// Conventions:
//   - Prices: integer cents (1-99) for book levels and trades
//   - Internal prices: hundred-thousandths (0-100,000) where sub-penny precision is stored
//   - Timestamps: int64 as delivered by the exchange
package model
