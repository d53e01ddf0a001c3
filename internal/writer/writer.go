package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/kalshi-go/internal/router"
)

const (
	insertSnapshotSQL = `
		INSERT INTO orderbook_snapshots (ticker, seq, sid, received_at, yes_levels, no_levels, best_yes_bid, best_yes_ask)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`

	insertDeltaSQL = `
		INSERT INTO orderbook_deltas (ticker, seq, sid, received_at, side, price, delta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`

	insertTradeSQL = `
		INSERT INTO trades (trade_id, ticker, yes_price, no_price, count, taker_side, ts, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`

	insertFillSQL = `
		INSERT INTO fills (trade_id, order_id, ticker, side, action, is_taker, yes_price, count, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`
)

// BatchSender runs a pgx batch. *pgxpool.Pool implements it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer configuration.
type Config struct {
	BatchSize     int           // Rows that trigger an early flush (default: 1000)
	FlushInterval time.Duration // Periodic flush (default: 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// Stats are cumulative writer counters. Conflicts are rows skipped by
// ON CONFLICT DO NOTHING.
type Stats struct {
	SnapshotInserts int64
	DeltaInserts    int64
	TradeInserts    int64
	FillInserts     int64
	Conflicts       int64
	Errors          int64
	Flushes         int64
	SeqGaps         int64
}

// Writer consumes events from a dispatcher buffer and writes them to
// Postgres.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// Input from the dispatcher
	input *router.GrowableBuffer[router.Event]

	// Database
	db BatchSender

	// Batching
	batchMu   sync.Mutex
	snapshots []snapshotRow
	deltas    []deltaRow
	trades    []tradeRow
	fills     []fillRow
	flushMu   sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	statsMu sync.Mutex
	stats   Stats
}

// New creates a new Writer.
func New(cfg Config, input *router.GrowableBuffer[router.Event], db BatchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer. Events still buffered are
// written in a final flush bounded by ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	for _, ev := range w.input.DrainTo(0) {
		w.handle(ev)
	}
	if err := w.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	w.logger.Info("writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		events := w.input.DrainTo(w.cfg.BatchSize)
		if len(events) == 0 {
			if w.input.Closed() {
				return
			}
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		for _, ev := range events {
			if w.handle(ev) {
				w.flushLogged(w.ctx)
			}
		}

		if w.ctx.Err() != nil {
			return
		}
	}
}

// flushLoop periodically flushes the batches.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushLogged(w.ctx)
		}
	}
}

// handle queues the row for ev and reports whether the batch is full.
func (w *Writer) handle(ev router.Event) bool {
	if ev.EventMeta().SeqGap {
		w.statsMu.Lock()
		w.stats.SeqGaps++
		w.statsMu.Unlock()
	}

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	switch e := ev.(type) {
	case *router.OrderbookSnapshot:
		w.snapshots = append(w.snapshots, transformSnapshot(e))
	case *router.OrderbookDelta:
		w.deltas = append(w.deltas, transformDelta(e))
	case *router.Trade:
		w.trades = append(w.trades, transformTrade(e))
	case *router.Fill:
		w.fills = append(w.fills, transformFill(e))
	case *router.MarketLifecycle:
		return false
	}

	return w.pendingLocked() >= w.cfg.BatchSize
}

func (w *Writer) pendingLocked() int {
	return len(w.snapshots) + len(w.deltas) + len(w.trades) + len(w.fills)
}

func (w *Writer) flushLogged(ctx context.Context) {
	if err := w.flush(ctx); err != nil {
		w.logger.Error("batch insert failed", "error", err)
	}
}

// flush writes every pending row in one pgx batch. Rows of a failed batch
// are dropped and counted as one error.
func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	snapshots, deltas, trades, fills := w.snapshots, w.deltas, w.trades, w.fills
	w.snapshots, w.deltas, w.trades, w.fills = nil, nil, nil, nil
	w.batchMu.Unlock()

	total := len(snapshots) + len(deltas) + len(trades) + len(fills)
	if total == 0 {
		return nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, r := range snapshots {
		batch.Queue(insertSnapshotSQL, r.Ticker, r.Seq, r.SID, r.ReceivedAt, r.YesLevels, r.NoLevels, r.BestYesBid, r.BestYesAsk)
	}
	for _, r := range deltas {
		batch.Queue(insertDeltaSQL, r.Ticker, r.Seq, r.SID, r.ReceivedAt, r.Side, r.Price, r.Delta)
	}
	for _, r := range trades {
		batch.Queue(insertTradeSQL, r.TradeID, r.Ticker, r.YesPrice, r.NoPrice, r.Count, r.TakerSide, r.Ts, r.ReceivedAt)
	}
	for _, r := range fills {
		batch.Queue(insertFillSQL, r.TradeID, r.OrderID, r.Ticker, r.Side, r.Action, r.IsTaker, r.YesPrice, r.Count, r.Ts)
	}

	var inserted [4]int64
	var conflicts int64
	err := func() error {
		results := w.db.SendBatch(ctx, batch)
		defer results.Close()

		for i, n := range []int{len(snapshots), len(deltas), len(trades), len(fills)} {
			for range n {
				ct, err := results.Exec()
				if err != nil {
					return err
				}
				if ct.RowsAffected() == 0 {
					conflicts++
				} else {
					inserted[i]++
				}
			}
		}
		return nil
	}()

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Flushes++
	if err != nil {
		w.stats.Errors++
		return fmt.Errorf("insert %d rows: %w", total, err)
	}
	w.stats.SnapshotInserts += inserted[0]
	w.stats.DeltaInserts += inserted[1]
	w.stats.TradeInserts += inserted[2]
	w.stats.FillInserts += inserted[3]
	w.stats.Conflicts += conflicts

	w.logger.Debug("flushed batch",
		"snapshots", len(snapshots),
		"deltas", len(deltas),
		"trades", len(trades),
		"fills", len(fills),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}
