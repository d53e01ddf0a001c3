package connection

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rickgao/kalshi-go/internal/auth"
	"github.com/rickgao/kalshi-go/internal/kerr"
	"github.com/rickgao/kalshi-go/internal/metrics"
	"github.com/rickgao/kalshi-go/internal/router"
)

// Session is an authenticated streaming session with subscription
// management and automatic reconnection.
//
// All handlers run on the session's service goroutine, one at a time.
// Handlers must not call Connect or Disconnect.
type Session struct {
	cfg     Config
	signer  *auth.Signer
	logger  *slog.Logger
	metrics *metrics.Metrics

	newClient func(ClientConfig, *slog.Logger) Client

	nextID atomic.Int64

	mu      sync.Mutex
	state   State
	client  Client
	cancel  context.CancelFunc
	done    chan struct{}
	subs    map[int64]*subscription // handle SID -> subscription
	pending map[int64]int64         // in-flight subscribe command id -> handle SID
	bySID   map[int64]int64         // server sid -> handle SID
	retired map[int64]bool          // server sids unsubscribed but not yet confirmed

	outbound *router.GrowableBuffer[[]byte]
	wake     chan struct{}

	handlerMu sync.RWMutex
	onMessage func(router.Event)
	onError   func(StreamError)
	onState   func(bool)

	cbMu      sync.Mutex
	announced bool // state(true) delivered without a matching state(false)

	// Owned by the service goroutine.
	lastSeq map[int64]int64
}

type subscription struct {
	id        SubscriptionID
	tickers   []string
	serverSID int64 // 0 until the server acknowledges

	// Ticker updates made before the ack, sent once the server sid is known.
	deferred []UpdateSubscriptionParams
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records stream counters on m.
func WithMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// NewSession creates a disconnected session. A nil signer connects
// without authentication, which the exchange only allows for public
// channels on some environments.
func NewSession(cfg Config, signer *auth.Signer, opts ...SessionOption) *Session {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectDelay
	}

	s := &Session{
		cfg:       cfg,
		signer:    signer,
		logger:    slog.Default(),
		newClient: NewClient,
		subs:      make(map[int64]*subscription),
		pending:   make(map[int64]int64),
		bySID:     make(map[int64]int64),
		retired:   make(map[int64]bool),
		outbound:  router.NewGrowableBuffer[[]byte](64),
		wake:      make(chan struct{}, 1),
		lastSeq:   make(map[int64]int64),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OnMessage sets the handler for data events, replacing any previous one.
func (s *Session) OnMessage(fn func(router.Event)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onMessage = fn
}

// OnError sets the handler for stream errors, replacing any previous one.
func (s *Session) OnError(fn func(StreamError)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onError = fn
}

// OnStateChange sets the handler for connect/disconnect transitions,
// replacing any previous one.
func (s *Session) OnStateChange(fn func(connected bool)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onState = fn
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Subscriptions returns the active subscription handles, oldest first.
func (s *Session) Subscriptions() []SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]SubscriptionID, 0, len(s.subs))
	for _, sub := range s.subs {
		ids = append(ids, sub.id)
	}
	slices.SortFunc(ids, func(a, b SubscriptionID) int {
		return cmp.Compare(a.SID, b.SID)
	})
	return ids
}

// Connect dials the streaming endpoint and starts the service goroutine.
// It is a no-op when the session is already connected or connecting.
// Subscriptions that survived an exhausted reconnect are restored.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected, StateConnecting, StateReconnecting:
		s.mu.Unlock()
		return nil
	case StateDisconnecting:
		s.mu.Unlock()
		return kerr.InvalidRequest("disconnect in progress")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	c := s.newClient(s.cfg.clientConfig(s.signer), s.logger)
	if err := c.Connect(ctx); err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.logger.Warn("connect failed", "url", s.cfg.URL, "error", err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnect ran while dialing.
		s.mu.Unlock()
		cancel()
		c.Close()
		return kerr.Network("connect aborted by disconnect", nil)
	}
	s.client = c
	s.state = StateConnected
	s.cancel = cancel
	s.done = done
	s.lastSeq = make(map[int64]int64)
	if len(s.subs) > 0 {
		s.resubscribeLocked()
	}
	s.mu.Unlock()

	s.logger.Info("stream connected", "url", s.cfg.URL)
	s.emitState(true)

	go s.run(loopCtx, c, done)
	s.signal()

	return nil
}

// Disconnect stops the service goroutine, waits for it and closes the
// socket. Active subscriptions are discarded. Safe to call repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	wasConnecting := s.state == StateConnecting
	s.state = StateDisconnecting
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if wasConnecting {
		// Connect observes the state change and discards its client.
		cancel, done = nil, nil
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.cancel = nil
	s.state = StateDisconnected
	clear(s.subs)
	clear(s.pending)
	clear(s.bySID)
	clear(s.retired)
	s.outbound.DrainTo(0)
	s.mu.Unlock()

	s.logger.Info("stream disconnected")
	s.emitState(false)
}

// SubscribeOrderbook subscribes to snapshots and deltas for tickers.
func (s *Session) SubscribeOrderbook(tickers []string) (SubscriptionID, error) {
	if len(tickers) == 0 {
		return SubscriptionID{}, kerr.InvalidRequest("orderbook subscription requires at least one ticker")
	}
	return s.subscribe(ChannelOrderbookDelta, tickers)
}

// SubscribeTrades subscribes to public trades, optionally filtered by ticker.
func (s *Session) SubscribeTrades(tickers ...string) (SubscriptionID, error) {
	return s.subscribe(ChannelTrade, tickers)
}

// SubscribeFills subscribes to the account's fills, optionally filtered by ticker.
func (s *Session) SubscribeFills(tickers ...string) (SubscriptionID, error) {
	return s.subscribe(ChannelFill, tickers)
}

// SubscribeLifecycle subscribes to market lifecycle events.
func (s *Session) SubscribeLifecycle() (SubscriptionID, error) {
	return s.subscribe(ChannelMarketLifecycle, nil)
}

func (s *Session) subscribe(ch Channel, tickers []string) (SubscriptionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return SubscriptionID{}, kerr.InvalidRequest("subscribe: " + ErrNotConnected.Error())
	}

	id := s.nextID.Add(1)
	sub := &subscription{
		id:      SubscriptionID{SID: id, Channel: ch},
		tickers: slices.Clone(tickers),
	}

	if err := s.enqueueLocked(subscribeCommand(id, sub)); err != nil {
		return SubscriptionID{}, err
	}
	s.subs[id] = sub
	s.pending[id] = id

	s.logger.Debug("subscribe queued", "id", id, "channel", ch, "tickers", len(tickers))
	return sub.id, nil
}

func subscribeCommand(cmdID int64, sub *subscription) Command {
	return Command{
		ID:  cmdID,
		Cmd: "subscribe",
		Params: SubscribeParams{
			Channels:      []string{string(sub.id.Channel)},
			MarketTickers: sub.tickers,
		},
	}
}

// Unsubscribe cancels a subscription. Frames for it stop reaching OnMessage
// as soon as Unsubscribe returns. A subscription the server has not yet
// acknowledged is cancelled when its ack arrives.
func (s *Session) Unsubscribe(id SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return kerr.InvalidRequest("unsubscribe: " + ErrNotConnected.Error())
	}

	target := id.SID
	if sub, ok := s.subs[id.SID]; ok {
		delete(s.subs, id.SID)
		if sub.serverSID == 0 {
			// The pending entry stays; handleControl cancels on the ack.
			s.logger.Debug("unsubscribe deferred until ack", "id", id.SID)
			return nil
		}
		target = sub.serverSID
		delete(s.bySID, target)
		s.retired[target] = true
	}

	return s.enqueueUnsubscribeLocked(target)
}

func (s *Session) enqueueUnsubscribeLocked(sid int64) error {
	return s.enqueueLocked(Command{
		ID:     s.nextID.Add(1),
		Cmd:    "unsubscribe",
		Params: UnsubscribeParams{SIDs: []int64{sid}},
	})
}

// AddMarkets adds tickers to an existing subscription.
func (s *Session) AddMarkets(id SubscriptionID, tickers []string) error {
	return s.updateSubscription(id, ActionAddMarkets, tickers)
}

// RemoveMarkets removes tickers from an existing subscription.
func (s *Session) RemoveMarkets(id SubscriptionID, tickers []string) error {
	return s.updateSubscription(id, ActionDeleteMarkets, tickers)
}

func (s *Session) updateSubscription(id SubscriptionID, action string, tickers []string) error {
	if len(tickers) == 0 {
		return kerr.InvalidRequest(action + " requires at least one ticker")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return kerr.InvalidRequest(action + ": " + ErrNotConnected.Error())
	}

	params := UpdateSubscriptionParams{
		Action:        action,
		Channel:       string(id.Channel),
		SIDs:          []int64{id.SID},
		MarketTickers: slices.Clone(tickers),
	}

	if sub, ok := s.subs[id.SID]; ok {
		if action == ActionAddMarkets {
			for _, t := range tickers {
				if !slices.Contains(sub.tickers, t) {
					sub.tickers = append(sub.tickers, t)
				}
			}
		} else {
			sub.tickers = slices.DeleteFunc(sub.tickers, func(t string) bool {
				return slices.Contains(tickers, t)
			})
		}

		if sub.serverSID == 0 {
			sub.deferred = append(sub.deferred, params)
			return nil
		}
		params.SIDs = []int64{sub.serverSID}
	}

	return s.enqueueLocked(Command{
		ID:     s.nextID.Add(1),
		Cmd:    "update_subscription",
		Params: params,
	})
}

// enqueueLocked queues a command for the service goroutine. Must be called
// with s.mu held.
func (s *Session) enqueueLocked(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return kerr.InvalidRequest(fmt.Sprintf("encode %s command: %v", cmd.Cmd, err))
	}
	s.outbound.Send(data)
	s.signal()
	return nil
}

// resubscribeLocked replaces queued commands with fresh subscribe commands
// for every active subscription. Must be called with s.mu held.
func (s *Session) resubscribeLocked() {
	s.outbound.DrainTo(0)
	clear(s.pending)
	clear(s.bySID)
	clear(s.retired)

	handles := make([]int64, 0, len(s.subs))
	for h := range s.subs {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	for _, h := range handles {
		sub := s.subs[h]
		sub.serverSID = 0
		sub.deferred = nil
		cmdID := s.nextID.Add(1)
		s.pending[cmdID] = h
		s.enqueueLocked(subscribeCommand(cmdID, sub))
	}

	if len(handles) > 0 {
		s.logger.Info("restoring subscriptions", "count", len(handles))
	}
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the service goroutine: it flushes outbound commands, dispatches
// inbound frames and recovers from connection loss.
func (s *Session) run(ctx context.Context, c Client, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.wake:
			if err := s.flush(c); err != nil {
				c = s.recover(ctx, c, err)
				if c == nil {
					return
				}
			}

		case err := <-c.Errors():
			c = s.recover(ctx, c, err)
			if c == nil {
				return
			}

		case msg := <-c.Messages():
			s.handleMessage(msg)
		}
	}
}

// flush writes queued commands in FIFO order. A write error leaves the
// socket unusable, so the caller treats it as a lost connection; the
// command that failed is covered by the resubscribe that follows.
func (s *Session) flush(c Client) error {
	for {
		data, ok := s.outbound.TryReceive()
		if !ok {
			return nil
		}
		if err := c.Send(data); err != nil {
			s.logger.Warn("failed to send command", "error", err)
			s.emitError(StreamError{Code: CodeWriteFailed, Message: "failed to write to websocket: " + err.Error()})
			return err
		}
	}
}

// recover handles a lost connection. It returns the replacement client, or
// nil when the session should stop.
func (s *Session) recover(ctx context.Context, old Client, cause error) Client {
	s.logger.Warn("stream connection lost", "error", cause)
	old.Close()
	s.emitError(StreamError{Code: CodeConnectionError, Message: cause.Error()})
	s.emitState(false)

	if !s.cfg.AutoReconnect {
		s.finish(ctx)
		return nil
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateReconnecting
	s.mu.Unlock()

	b := &backoff.Backoff{
		Min:    s.cfg.ReconnectDelay,
		Max:    s.cfg.ReconnectMaxDelay,
		Factor: 2,
		Jitter: false,
	}

	for attempt := 1; attempt <= s.cfg.MaxReconnectAttempts; attempt++ {
		wait := b.Duration()
		s.logger.Info("reconnecting", "attempt", attempt, "max_attempts", s.cfg.MaxReconnectAttempts, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		s.metrics.Reconnect()
		c := s.newClient(s.cfg.clientConfig(s.signer), s.logger)
		if err := c.Connect(ctx); err != nil {
			s.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			c.Close()
			return nil
		}
		s.client = c
		s.state = StateConnected
		s.resubscribeLocked()
		s.mu.Unlock()

		s.lastSeq = make(map[int64]int64)
		s.logger.Info("stream reconnected", "attempt", attempt)
		s.emitState(true)
		// run flushes the resubscribe commands on its next pass.
		s.signal()
		return c
	}

	s.logger.Error("reconnect attempts exhausted", "attempts", s.cfg.MaxReconnectAttempts)
	s.emitError(StreamError{
		Code:    CodeReconnectExhausted,
		Message: fmt.Sprintf("reconnect failed after %d attempts", s.cfg.MaxReconnectAttempts),
	})
	s.finish(ctx)
	return nil
}

// finish moves to Disconnected after the service goroutine gives up.
// Subscriptions are kept so a later Connect restores them.
func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return // Disconnect owns the transition
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.client = nil
	s.cancel = nil
	s.state = StateDisconnected
}

func (s *Session) handleMessage(msg TimestampedMessage) {
	frame, err := router.Decode(msg.Data)
	if err != nil {
		if errors.Is(err, router.ErrUnknownType) {
			s.logger.Debug("skipping message type", "error", err)
			return
		}
		s.metrics.DecodeError()
		s.logger.Warn("failed to decode message", "error", err)
		s.emitError(StreamError{Code: CodeDecodeFailed, Message: err.Error()})
		return
	}

	if frame.Control != nil {
		s.handleControl(frame.Control)
		return
	}

	s.mu.Lock()
	retired := s.retired[frame.SID]
	s.mu.Unlock()
	if retired {
		return
	}

	ev := frame.Event
	meta := ev.EventMeta()
	meta.ReceivedAt = msg.ReceivedAt
	if frame.HasSeq {
		meta.SeqGap, meta.GapSize = s.checkSequence(frame.SID, frame.Seq)
		if meta.SeqGap {
			meta.GapTickers = s.tickersFor(frame.SID)
		}
	}

	s.metrics.StreamMessage(frame.Type)
	s.emitMessage(ev)
}

func (s *Session) handleControl(c *router.Control) {
	switch c.Type {
	case router.TypeSubscribed:
		s.mu.Lock()
		if handle, ok := s.pending[c.ID]; ok {
			delete(s.pending, c.ID)
			if sub, ok := s.subs[handle]; ok {
				sub.serverSID = c.SID
				s.bySID[c.SID] = handle
				for _, p := range sub.deferred {
					p.SIDs = []int64{c.SID}
					s.enqueueLocked(Command{ID: s.nextID.Add(1), Cmd: "update_subscription", Params: p})
				}
				sub.deferred = nil
			} else {
				// Unsubscribed before the ack.
				s.retired[c.SID] = true
				s.enqueueUnsubscribeLocked(c.SID)
			}
		}
		s.mu.Unlock()
		s.logger.Debug("subscribed", "id", c.ID, "sid", c.SID, "channel", c.Channel)

	case router.TypeUnsubscribed:
		s.mu.Lock()
		delete(s.retired, c.SID)
		s.mu.Unlock()
		delete(s.lastSeq, c.SID)
		s.logger.Debug("unsubscribed", "id", c.ID, "sid", c.SID)

	case router.TypeError:
		s.mu.Lock()
		if handle, ok := s.pending[c.ID]; ok {
			// The subscribe was rejected; don't restore it on reconnect.
			delete(s.pending, c.ID)
			delete(s.subs, handle)
		}
		s.mu.Unlock()
		s.logger.Warn("server error", "id", c.ID, "code", c.Code, "message", c.Message)
		s.emitError(StreamError{Code: c.Code, Message: c.Message})

	case router.TypeOK:
		s.logger.Debug("command ok", "id", c.ID, "sid", c.SID)
	}
}

// tickersFor returns the tickers of the subscription behind a server sid.
// A gap on a multi-market sid may have lost a frame for any of them.
func (s *Session) tickersFor(sid int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[s.bySID[sid]]
	if !ok {
		return nil
	}
	return slices.Clone(sub.tickers)
}

// checkSequence checks for sequence gaps and returns gap info.
func (s *Session) checkSequence(sid, seq int64) (seqGap bool, gapSize int) {
	last, exists := s.lastSeq[sid]
	s.lastSeq[sid] = seq
	if !exists {
		// First message for this subscription
		return false, 0
	}

	if seq != last+1 {
		gap := int(seq - last - 1)
		s.logger.Warn("sequence gap detected",
			"sid", sid,
			"expected", last+1,
			"got", seq,
			"gap", gap,
		)
		s.metrics.SeqGap()
		return true, gap
	}

	return false, 0
}

func (s *Session) emitMessage(ev router.Event) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.handlerMu.RLock()
	fn := s.onMessage
	s.handlerMu.RUnlock()

	if fn != nil {
		fn(ev)
	}
}

func (s *Session) emitError(e StreamError) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.handlerMu.RLock()
	fn := s.onError
	s.handlerMu.RUnlock()

	if fn != nil {
		fn(e)
	}
}

// emitState delivers a transition once; repeated calls with the same value
// are dropped.
func (s *Session) emitState(connected bool) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.announced == connected {
		return
	}
	s.announced = connected
	s.metrics.SetConnected(connected)

	s.handlerMu.RLock()
	fn := s.onState
	s.handlerMu.RUnlock()

	if fn != nil {
		fn(connected)
	}
}
