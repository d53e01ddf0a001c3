package router

import (
	"sync"
	"testing"
	"time"
)

func delta(seq int64) Event {
	return &OrderbookDelta{Meta: Meta{SID: 1, Seq: seq}, MarketTicker: "KXBTC-A", Price: 50, Delta: 1}
}

func seqOf(t *testing.T, ev Event) int64 {
	t.Helper()
	if ev == nil {
		t.Fatal("nil event")
	}
	return ev.EventMeta().Seq
}

func TestGrowableBuffer_FIFO(t *testing.T) {
	buf := NewGrowableBuffer[Event](4)

	for seq := int64(1); seq <= 100; seq++ {
		if !buf.Send(delta(seq)) {
			t.Fatalf("Send(seq %d) returned false", seq)
		}
	}
	if buf.Len() != 100 {
		t.Errorf("Len() = %d, want 100", buf.Len())
	}

	for want := int64(1); want <= 100; want++ {
		ev, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() empty at seq %d", want)
		}
		if got := seqOf(t, ev); got != want {
			t.Fatalf("seq = %d, want %d", got, want)
		}
	}

	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive() on empty buffer returned an item")
	}
}

func TestGrowableBuffer_CommandOrderAcrossConsumption(t *testing.T) {
	buf := NewGrowableBuffer[[]byte](2)

	send := func(cmds ...string) {
		for _, c := range cmds {
			buf.Send([]byte(c))
		}
	}
	recv := func() string {
		b, ok := buf.TryReceive()
		if !ok {
			t.Fatal("TryReceive() empty")
		}
		return string(b)
	}

	send(`{"id":1}`, `{"id":2}`, `{"id":3}`)
	if got := recv(); got != `{"id":1}` {
		t.Errorf("first = %s", got)
	}

	// Interleave sends with receives past the sizing hint.
	send(`{"id":4}`, `{"id":5}`, `{"id":6}`)
	want := []string{`{"id":2}`, `{"id":3}`, `{"id":4}`, `{"id":5}`, `{"id":6}`}
	for _, w := range want {
		if got := recv(); got != w {
			t.Errorf("got %s, want %s", got, w)
		}
	}
}

func TestGrowableBuffer_ReceiveBlocksUntilSend(t *testing.T) {
	buf := NewGrowableBuffer[Event](1)
	got := make(chan Event, 1)

	go func() {
		if ev, ok := buf.Receive(); ok {
			got <- ev
		}
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before any Send")
	case <-time.After(20 * time.Millisecond):
	}

	buf.Send(&Trade{MarketTicker: "KXBTC-A", TradeID: "t1"})

	select {
	case ev := <-got:
		tr, ok := ev.(*Trade)
		if !ok || tr.TradeID != "t1" {
			t.Errorf("received %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked Receive")
	}
}

func TestGrowableBuffer_CloseKeepsQueuedItems(t *testing.T) {
	buf := NewGrowableBuffer[Event](4)
	buf.Send(delta(1))
	buf.Send(delta(2))

	buf.Close()
	if !buf.Closed() {
		t.Error("Closed() = false after Close")
	}
	if buf.Send(delta(3)) {
		t.Error("Send succeeded after Close")
	}

	for want := int64(1); want <= 2; want++ {
		ev, ok := buf.Receive()
		if !ok {
			t.Fatalf("Receive() = false with seq %d still queued", want)
		}
		if got := seqOf(t, ev); got != want {
			t.Errorf("seq = %d, want %d", got, want)
		}
	}

	if _, ok := buf.Receive(); ok {
		t.Error("Receive should report false once closed and drained")
	}
}

func TestGrowableBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewGrowableBuffer[Event](1)
	done := make(chan bool, 1)

	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	tests := []struct {
		name     string
		queued   int
		max      int
		want     int
		leftover int
	}{
		{"partial", 10, 4, 4, 6},
		{"all with zero", 10, 0, 10, 0},
		{"max beyond len", 3, 50, 3, 0},
		{"empty", 0, 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewGrowableBuffer[Event](8)
			for seq := 1; seq <= tt.queued; seq++ {
				buf.Send(delta(int64(seq)))
			}

			batch := buf.DrainTo(tt.max)
			if len(batch) != tt.want {
				t.Fatalf("DrainTo(%d) returned %d items, want %d", tt.max, len(batch), tt.want)
			}
			for i, ev := range batch {
				if got := seqOf(t, ev); got != int64(i+1) {
					t.Errorf("batch[%d].Seq = %d, want %d", i, got, i+1)
				}
			}
			if buf.Len() != tt.leftover {
				t.Errorf("Len() = %d, want %d", buf.Len(), tt.leftover)
			}
		})
	}
}

func TestGrowableBuffer_ConcurrentProducers(t *testing.T) {
	buf := NewGrowableBuffer[Event](16)
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(sid int64) {
			defer wg.Done()
			for seq := int64(1); seq <= perProducer; seq++ {
				buf.Send(&OrderbookDelta{Meta: Meta{SID: sid, Seq: seq}})
			}
		}(int64(p))
	}

	// Per-sid order must survive interleaving between producers.
	lastSeq := make(map[int64]int64)
	for i := 0; i < producers*perProducer; i++ {
		ev, ok := buf.Receive()
		if !ok {
			t.Fatalf("Receive() = false after %d items", i)
		}
		m := ev.EventMeta()
		if m.Seq != lastSeq[m.SID]+1 {
			t.Fatalf("sid %d: seq %d after %d", m.SID, m.Seq, lastSeq[m.SID])
		}
		lastSeq[m.SID] = m.Seq
	}
	wg.Wait()

	for sid := int64(0); sid < producers; sid++ {
		if lastSeq[sid] != perProducer {
			t.Errorf("sid %d ended at seq %d, want %d", sid, lastSeq[sid], perProducer)
		}
	}
}

func TestGrowableBuffer_Stats(t *testing.T) {
	buf := NewGrowableBuffer[Event](10)

	stats := buf.Stats()
	if stats.Count != 0 || stats.InitialCapacity != 10 || stats.TotalReceived != 0 || stats.TotalSent != 0 {
		t.Errorf("initial stats incorrect: %+v", stats)
	}

	for seq := int64(1); seq <= 3; seq++ {
		buf.Send(delta(seq))
	}
	buf.TryReceive()
	buf.TryReceive()
	buf.Send(delta(4))

	// TotalReceived counts items taken in by Send; TotalSent counts items
	// handed out to consumers.
	stats = buf.Stats()
	if stats.Count != 2 || stats.TotalReceived != 4 || stats.TotalSent != 2 || stats.HighWater != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNewGrowableBuffer_MinCapacity(t *testing.T) {
	for _, n := range []int{0, -5} {
		if got := NewGrowableBuffer[Event](n).Stats().InitialCapacity; got != 1 {
			t.Errorf("NewGrowableBuffer(%d) InitialCapacity = %d, want 1", n, got)
		}
	}
}
