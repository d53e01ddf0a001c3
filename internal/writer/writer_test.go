package writer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/router"
)

type queued struct {
	SQL  string
	Args []any
}

// fakeDB records batches. Rows for which conflict returns true report
// zero rows affected.
type fakeDB struct {
	mu       sync.Mutex
	batches  [][]queued
	conflict func(q queued) bool
	err      error
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	qs := make([]queued, 0, b.Len())
	for _, q := range b.QueuedQueries {
		qs = append(qs, queued{SQL: q.SQL, Args: q.Arguments})
	}
	f.batches = append(f.batches, qs)
	return &fakeResults{db: f, queries: qs}
}

func (f *fakeDB) rows() []queued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []queued
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

type fakeResults struct {
	db      *fakeDB
	queries []queued
	next    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.db.err != nil {
		return pgconn.CommandTag{}, r.db.err
	}
	q := r.queries[r.next]
	r.next++
	if r.db.conflict != nil && r.db.conflict(q) {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func sampleEvents() []router.Event {
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	return []router.Event{
		&router.OrderbookSnapshot{
			Meta:         router.Meta{SID: 7, Seq: 1, ReceivedAt: at},
			MarketTicker: "MKT",
			Yes:          []model.PriceLevel{{Price: 48, Quantity: 10}},
			No:           []model.PriceLevel{{Price: 50, Quantity: 5}},
		},
		&router.OrderbookDelta{
			Meta:         router.Meta{SID: 7, Seq: 2, ReceivedAt: at},
			MarketTicker: "MKT",
			Price:        48,
			Delta:        -3,
			Side:         model.SideYes,
		},
		&router.Trade{
			Meta:         router.Meta{SID: 8, Seq: 1, ReceivedAt: at},
			TradeID:      "t1",
			MarketTicker: "MKT",
			YesPrice:     49,
			NoPrice:      51,
			Count:        3,
			TakerSide:    model.SideNo,
			Ts:           1705320000,
		},
		&router.Fill{
			Meta:         router.Meta{SID: 9, Seq: 1, ReceivedAt: at},
			TradeID:      "t1",
			OrderID:      "o1",
			MarketTicker: "MKT",
			IsTaker:      true,
			Side:         model.SideYes,
			Action:       model.ActionSell,
			YesPrice:     49,
			Count:        3,
			Ts:           1705320000,
		},
		&router.MarketLifecycle{MarketTicker: "MKT", Result: "yes"},
	}
}

func TestWriter_FlushAllTables(t *testing.T) {
	db := &fakeDB{}
	w := New(Config{BatchSize: 100, FlushInterval: time.Hour}, router.NewGrowableBuffer[router.Event](10), db, nil)

	for _, ev := range sampleEvents() {
		w.handle(ev)
	}
	require.NoError(t, w.flush(context.Background()))

	rows := db.rows()
	require.Len(t, rows, 4, "lifecycle events are not persisted")
	assert.Contains(t, rows[0].SQL, "INSERT INTO orderbook_snapshots")
	assert.Contains(t, rows[1].SQL, "INSERT INTO orderbook_deltas")
	assert.Contains(t, rows[2].SQL, "INSERT INTO trades")
	assert.Contains(t, rows[3].SQL, "INSERT INTO fills")
	for _, r := range rows {
		assert.True(t, strings.HasSuffix(r.SQL, "ON CONFLICT DO NOTHING"), r.SQL)
	}

	assert.Equal(t, []any{"MKT", int64(2), int64(7), sampleEvents()[1].EventMeta().ReceivedAt, "yes", 48, -3}, rows[1].Args)
	assert.Equal(t, "no", rows[2].Args[5])
	assert.Equal(t, "sell", rows[3].Args[4])
	assert.Equal(t, true, rows[3].Args[5])

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.SnapshotInserts)
	assert.Equal(t, int64(1), stats.DeltaInserts)
	assert.Equal(t, int64(1), stats.TradeInserts)
	assert.Equal(t, int64(1), stats.FillInserts)
	assert.Equal(t, int64(1), stats.Flushes)

	// Nothing pending: no new batch.
	require.NoError(t, w.flush(context.Background()))
	assert.Len(t, db.batches, 1)
}

func TestWriter_Conflicts(t *testing.T) {
	db := &fakeDB{conflict: func(q queued) bool {
		return strings.Contains(q.SQL, "INSERT INTO trades")
	}}
	w := New(DefaultConfig(), router.NewGrowableBuffer[router.Event](10), db, nil)

	for _, ev := range sampleEvents() {
		w.handle(ev)
	}
	require.NoError(t, w.flush(context.Background()))

	stats := w.Stats()
	assert.Equal(t, int64(0), stats.TradeInserts)
	assert.Equal(t, int64(1), stats.Conflicts)
	assert.Equal(t, int64(1), stats.FillInserts)
}

func TestWriter_FlushError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	w := New(DefaultConfig(), router.NewGrowableBuffer[router.Event](10), db, nil)

	w.handle(sampleEvents()[2])
	err := w.flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert 1 rows")

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(0), stats.TradeInserts)

	// The failed rows are dropped.
	db.err = nil
	require.NoError(t, w.flush(context.Background()))
	assert.Len(t, db.batches, 1)
}

func TestWriter_SeqGapCounted(t *testing.T) {
	w := New(DefaultConfig(), router.NewGrowableBuffer[router.Event](10), &fakeDB{}, nil)
	w.handle(&router.OrderbookDelta{Meta: router.Meta{Seq: 5, SeqGap: true, GapSize: 2}, MarketTicker: "M"})
	assert.Equal(t, int64(1), w.Stats().SeqGaps)
}

func TestWriter_BatchSizeTriggersFlush(t *testing.T) {
	db := &fakeDB{}
	input := router.NewGrowableBuffer[router.Event](10)
	w := New(Config{BatchSize: 2, FlushInterval: time.Hour}, input, db, nil)

	require.NoError(t, w.Start(context.Background()))
	for _, ev := range sampleEvents()[:2] {
		input.Send(ev)
	}

	assert.Eventually(t, func() bool {
		return w.Stats().Flushes == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop(context.Background()))
	assert.Len(t, db.rows(), 2)
}

func TestWriter_StopFlushesRemaining(t *testing.T) {
	db := &fakeDB{}
	d := router.NewDispatcher(nil)
	input := d.Subscribe("writer", 10)
	w := New(Config{BatchSize: 1000, FlushInterval: time.Hour}, input, db, nil)

	require.NoError(t, w.Start(context.Background()))
	for _, ev := range sampleEvents() {
		d.Publish(ev)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Len(t, db.rows(), 4)
	assert.Equal(t, 0, input.Len())
}

func TestWriter_IntervalFlush(t *testing.T) {
	db := &fakeDB{}
	input := router.NewGrowableBuffer[router.Event](10)
	w := New(Config{BatchSize: 1000, FlushInterval: 20 * time.Millisecond}, input, db, nil)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	input.Send(sampleEvents()[2])
	assert.Eventually(t, func() bool {
		return w.Stats().TradeInserts == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.FlushInterval)

	w := New(Config{}, router.NewGrowableBuffer[router.Event](1), &fakeDB{}, nil)
	assert.Equal(t, cfg, w.cfg)
}
