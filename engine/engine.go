// Package engine implements the multiplexed connection engine of
// spec.md sections 4.F and 4.G: a full-duplex state machine that
// concurrently writes queued requests, reads replies, demultiplexes
// them to waiting submitters, separates push frames from command
// replies, and drives health checks and reconnection.
//
// The source's single cooperative strand (spec.md section 5) is
// mapped onto one owning goroutine per connection generation plus a
// mutex guarding the pending FIFO and outbound queue: external
// submitters (Exec) and the engine's own writer/reader/health
// goroutines all serialize through that mutex rather than through an
// executor strand, since Go has no direct equivalent — the same
// single-owner discipline, expressed with the concurrency primitives
// Go actually offers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/awinterman/respmux/internal/backoff"
	"github.com/awinterman/respmux/metrics"
	"github.com/awinterman/respmux/request"
	"github.com/awinterman/respmux/resp"
	"github.com/awinterman/respmux/resp/adapter"
	"github.com/awinterman/respmux/resp/kind"
)

var traceLevel = slog.Level(-8)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's *slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics overrides the engine's metrics.Recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithMaxDepth bounds the parser's aggregate nesting depth.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

type outboundChunk struct {
	slot *slot
	data []byte
}

// Engine owns one socket, the pending FIFO, and the outbound queue for
// the lifetime of a connection attempt (spec.md section 3).
type Engine struct {
	transport Transport
	endpoint  EndpointConfig
	timeouts  Timeouts
	logger    *slog.Logger
	rec       metrics.Recorder
	maxDepth  int

	mu           sync.Mutex
	state        State
	conn         Conn
	parser       *resp.Parser
	rb           *byteBuffer
	pending      []*slot
	outbound     []outboundChunk
	endpointInfo Endpoint

	generation uint64 // atomic
	pingNonce  uint64 // atomic

	pushCh chan PushMessage
	wake   chan struct{}
	closed chan struct{}
}

// New builds an Engine. Run must be called to actually connect and
// service it.
func New(transport Transport, endpoint EndpointConfig, timeouts Timeouts, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		endpoint:  endpoint,
		timeouts:  timeouts,
		logger:    slog.With("comp", "engine"),
		rec:       metrics.Noop{},
		maxDepth:  resp.DefaultMaxDepth,
		pushCh:    make(chan PushMessage, 256),
		wake:      make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Push returns the channel server-initiated push frames are delivered
// on (spec.md section 4.F: pub/sub messages, key-space invalidations).
func (e *Engine) Push() <-chan PushMessage {
	return e.pushCh
}

// State reports the engine's current state-machine node.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Endpoint returns the most recently negotiated HELLO 3 description.
func (e *Engine) Endpoint() Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endpointInfo
}

// Stats is a point-in-time snapshot of engine bookkeeping.
type Stats struct {
	State        State
	PendingDepth int
	Generation   uint64
}

// Stats returns a snapshot of the engine's bookkeeping.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		State:        e.state,
		PendingDepth: len(e.pending),
		Generation:   atomic.LoadUint64(&e.generation),
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.logger.Debug("state transition", "state", s)
	if s == StateRunning {
		e.wakeWriter()
	}
}

func (e *Engine) wakeWriter() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run drives the engine: connect, handshake, run, and — on connection
// loss — reconnect with backoff, until ctx is cancelled. Cancelling
// ctx transitions the engine to draining and then disconnected
// (spec.md section 4.F: cancelling operation::run).
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.closed)
	back := backoff.NewDecorrelated()

	for {
		if ctx.Err() != nil {
			e.setState(StateDisconnected)
			return ctx.Err()
		}

		cs, err := e.connectOnce(ctx)
		if err != nil {
			e.rec.ReconnectAttempted()
			e.logger.Warn("connect failed", "err", err)
			select {
			case <-ctx.Done():
				e.setState(StateDisconnected)
				return ctx.Err()
			case <-time.After(back.Next()):
				continue
			}
		}
		back.Reset()

		e.runConnection(ctx, cs)

		if ctx.Err() != nil {
			e.setState(StateDisconnected)
			return ctx.Err()
		}
		e.rec.ReconnectAttempted()
	}
}

// connSession bundles one connection attempt's socket with the
// single "this connection just died" signal shared by its writer,
// reader and health-check goroutines, all of which are started
// exactly once here so handshake and runConnection never race two
// readers or two writers over the same socket.
type connSession struct {
	conn       Conn
	lost       chan struct{}
	signalLost func()
}

func (e *Engine) connectOnce(ctx context.Context) (*connSession, error) {
	e.setState(StateResolving)
	e.setState(StateConnecting)

	connectCtx := ctx
	var cancel context.CancelFunc
	if e.timeouts.ConnectTimeout > 0 {
		connectCtx, cancel = context.WithTimeout(ctx, e.timeouts.ConnectTimeout)
		defer cancel()
	}

	conn, err := e.transport.Connect(connectCtx, e.endpoint)
	if err != nil {
		e.setState(StateDisconnected)
		return nil, newError(ErrKindConnectTimeout, "connect failed", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.parser = resp.NewParser(e.maxDepth)
	e.rb = &byteBuffer{}
	e.mu.Unlock()
	atomic.AddUint64(&e.generation, 1)

	lost := make(chan struct{})
	var once sync.Once
	cs := &connSession{
		conn:       conn,
		lost:       lost,
		signalLost: func() { once.Do(func() { close(lost) }) },
	}
	go e.supervisedWriter(conn, cs.signalLost)
	go e.supervisedReader(conn, cs.signalLost)

	e.setState(StateHandshaking)
	if err := e.handshake(ctx, conn); err != nil {
		conn.Close()
		e.setState(StateDisconnected)
		return nil, newError(ErrKindHandshakeFailed, "handshake failed", err)
	}

	e.setState(StateRunning)
	return cs, nil
}

// handshake sends HELLO 3 (with optional AUTH/SETNAME) and an optional
// SELECT, as the implicit, always-priority request spec.md section
// 4.F describes, and records the resulting Endpoint.
func (e *Engine) handshake(ctx context.Context, conn Conn) error {
	req := request.New()
	args := []any{"3"}
	if e.endpoint.Username != "" || e.endpoint.Password != "" {
		args = append(args, "AUTH", e.endpoint.Username, e.endpoint.Password)
	}
	if e.endpoint.ClientName != "" {
		args = append(args, "SETNAME", e.endpoint.ClientName)
	}
	if err := req.Push("HELLO", args...); err != nil {
		return err
	}
	var ep Endpoint
	adapters := []adapter.Adapter{helloAdapter{dst: &ep}}

	if e.endpoint.HasDatabaseIdx {
		if err := req.Push("SELECT", e.endpoint.DatabaseIndex); err != nil {
			return err
		}
		adapters = append(adapters, adapter.Ignore{})
	}
	req.GetConfig().HelloWithPriority = true

	s := newSlot(req, adapters, *req.GetConfig())
	e.mu.Lock()
	e.pending = append(e.pending, s)
	e.outbound = append(e.outbound, outboundChunk{slot: s, data: append([]byte(nil), req.Payload()...)})
	e.mu.Unlock()
	e.wakeWriter()

	select {
	case <-s.done:
		if s.err != nil {
			return s.err
		}
		e.mu.Lock()
		e.endpointInfo = ep
		e.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runConnection services one connected, handshaked socket until it is
// lost or ctx is cancelled. The writer, reader and their shared
// "lost" signal were already started by connectOnce; this only adds
// the health-check goroutine and waits.
func (e *Engine) runConnection(ctx context.Context, cs *connSession) {
	go e.healthLoop(ctx, cs.conn, cs.signalLost)

	select {
	case <-cs.lost:
	case <-ctx.Done():
		e.setState(StateDraining)
		drainTick := time.NewTicker(5 * time.Millisecond)
		defer drainTick.Stop()
		for {
			if e.pendingEmpty() {
				break
			}
			select {
			case <-cs.lost:
				cs.conn.Close()
				return
			case <-drainTick.C:
			}
		}
		cs.conn.Close()
		<-cs.lost
	}
}

func (e *Engine) pendingEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending) == 0
}

func (e *Engine) supervisedWriter(conn Conn, onLost func()) {
	if err := e.writerLoop(conn); err != nil {
		e.onConnectionError(err)
		onLost()
	}
}

func (e *Engine) supervisedReader(conn Conn, onLost func()) {
	if err := e.readerLoop(conn); err != nil {
		e.onConnectionError(err)
		onLost()
	}
}

// writerLoop flushes queued request bytes in a single write per wake,
// never splitting one request's bytes across flushes (spec.md section
// 5). While handshaking, only slots whose Config.HelloWithPriority is
// set are eligible to flush ahead of the implicit handshake request;
// flushed slots are then moved ahead of the held-back ones in the
// pending FIFO, so replies still reach slots in wire order.
func (e *Engine) writerLoop(conn Conn) error {
	for {
		select {
		case <-e.wake:
		case <-e.closed:
			return nil
		}

		e.mu.Lock()
		var toFlush []outboundChunk
		switch e.state {
		case StateHandshaking:
			var kept []outboundChunk
			for _, item := range e.outbound {
				if item.slot.cfg.HelloWithPriority {
					toFlush = append(toFlush, item)
				} else {
					kept = append(kept, item)
				}
			}
			e.outbound = kept
		case StateRunning:
			toFlush = e.outbound
			e.outbound = nil
		default:
			e.mu.Unlock()
			continue
		}
		for _, item := range toFlush {
			item.slot.flushed = true
		}
		if e.state == StateHandshaking {
			// Replies arrive in wire order: flushed slots lead the pending FIFO.
			var front, back []*slot
			for _, s := range e.pending {
				if s.flushed {
					front = append(front, s)
				} else {
					back = append(back, s)
				}
			}
			e.pending = append(front, back...)
		}
		e.mu.Unlock()

		if len(toFlush) == 0 {
			continue
		}
		var buf []byte
		for _, item := range toFlush {
			buf = append(buf, item.data...)
		}
		if _, err := conn.Write(buf); err != nil {
			return err
		}
	}
}

// readerLoop drives readOne in a loop, routing push frames to the
// push channel and ordinary replies to the oldest pending slot
// (spec.md section 4.F).
func (e *Engine) readerLoop(conn Conn) error {
	for {
		e.mu.Lock()
		parser, rb := e.parser, e.rb
		e.mu.Unlock()

		nodes, err := readOne(conn, parser, rb)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			continue
		}
		slog.Log(context.Background(), traceLevel, "reply", "kind", nodes[0].Kind.String(), "nodeCount", len(nodes))
		if nodes[0].Kind == kind.Push {
			e.rec.PushesReceived(1)
			select {
			case e.pushCh <- PushMessage{Nodes: nodes}:
			case <-e.closed:
				return nil
			}
			continue
		}

		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			e.logger.Warn("reply received with an empty pending FIFO", "nodeCount", len(nodes))
			continue
		}
		head := e.pending[0]
		completed, _ := head.consumeReply(nodes)
		if completed {
			e.pending = e.pending[1:]
		}
		depth := len(e.pending)
		e.mu.Unlock()

		e.rec.PendingDepth(depth)
		if completed {
			e.rec.CommandsCompleted(head.req.Len())
			head.finish(nil)
		}
	}
}

// healthLoop periodically submits a PING with a unique payload through
// Exec, queued behind any requests already pending like any other
// request (no priority over them); a missing or mismatched reply within HealthCheckTimeout
// closes the socket, which the writer/reader observe as an I/O error
// and which triggers Run's reconnect loop (spec.md section 4.G).
func (e *Engine) healthLoop(ctx context.Context, conn Conn, onIdle func()) {
	if e.timeouts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.timeouts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		case <-ticker.C:
			if e.pingOnce(ctx) != nil {
				conn.Close()
				onIdle()
				return
			}
		}
	}
}

func (e *Engine) pingOnce(ctx context.Context) error {
	nonce := atomic.AddUint64(&e.pingNonce, 1)
	gen := atomic.LoadUint64(&e.generation)
	payload := fmt.Sprintf("%x", xxhash.Sum64(fmt.Appendf(nil, "ping-%d-%d", gen, nonce)))

	req := request.New()
	if err := req.Push("PING", payload); err != nil {
		return err
	}
	var reply string
	pingCtx := ctx
	var cancel context.CancelFunc
	if e.timeouts.HealthCheckTimeout > 0 {
		pingCtx, cancel = context.WithTimeout(ctx, e.timeouts.HealthCheckTimeout)
		defer cancel()
	}
	if err := e.Exec(pingCtx, req, []adapter.Adapter{adapter.String{Dst: &reply}}); err != nil {
		return newError(ErrKindIdleTimeout, "health check failed", err)
	}
	if reply != payload {
		return newError(ErrKindIdleTimeout, "health check payload mismatch", nil)
	}
	return nil
}

// Exec submits req and blocks until every reply it expects has been
// delivered to adapters, ctx is cancelled, or the engine stops
// (spec.md section 4.F, "async_exec").
func (e *Engine) Exec(ctx context.Context, req *request.Request, adapters []adapter.Adapter) error {
	cfg := *req.GetConfig()
	s := newSlot(req, adapters, cfg)
	submitted := time.Now()

	e.mu.Lock()
	if cfg.CancelIfNotConnected && e.state != StateRunning && e.state != StateHandshaking {
		e.mu.Unlock()
		return newError(ErrKindNotConnected, "engine is not connected", nil)
	}
	e.pending = append(e.pending, s)
	e.outbound = append(e.outbound, outboundChunk{slot: s, data: append([]byte(nil), req.Payload()...)})
	depth := len(e.pending)
	e.mu.Unlock()

	e.rec.CommandsSubmitted(req.Len())
	e.rec.PendingDepth(depth)
	e.wakeWriter()

	select {
	case <-s.done:
		e.rec.RoundTrip(time.Since(submitted))
		return s.err
	case <-ctx.Done():
		e.cancelSlot(s)
		return newError(ErrKindCancelled, "exec cancelled", ctx.Err())
	case <-e.closed:
		return newError(ErrKindConnectionLost, "engine stopped", nil)
	}
}

// cancelSlot implements the two cancellation granularities of spec.md
// section 4.F: bytes never flushed are simply dropped from the
// outbound queue and the slot forgotten; bytes already flushed mean
// the reader must still drain and discard this slot's remaining
// replies to stay in sync with the stream, so the slot stays in the
// pending FIFO with cancelled set.
func (e *Engine) cancelSlot(s *slot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.flushed {
		for i, item := range e.outbound {
			if item.slot == s {
				e.outbound = append(e.outbound[:i], e.outbound[i+1:]...)
				break
			}
		}
		for i, p := range e.pending {
			if p == s {
				e.pending = append(e.pending[:i], e.pending[i+1:]...)
				break
			}
		}
		return
	}
	s.cancelled = true
}

// onConnectionError handles a reader/writer I/O error: slots whose
// Config.CancelOnConnectionLost is set fail immediately; the rest are
// kept across the reconnect per spec.md section 4.G, unless they had
// already made partial progress and did not opt into Config.Retry (see
// DESIGN.md's resolution of spec.md section 9 open question (a)).
func (e *Engine) onConnectionError(cause error) {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.state = StateDisconnected
	e.endpointInfo = Endpoint{}
	var kept []*slot
	for _, s := range e.pending {
		switch {
		case s.cfg.CancelOnConnectionLost:
			s.finish(newError(ErrKindConnectionLost, "connection lost", cause))
		case s.cmdIndex > 0 && !s.cfg.Retry:
			s.finish(newError(ErrKindConnectionLost, "connection lost mid-reply without retry enabled", cause))
		default:
			s.flushed = false
			s.cancelled = false
			s.cmdIndex = 0
			s.totalRemaining = s.origTotal
			if len(s.req.Commands()) > 0 {
				s.cmdRemaining = s.req.Commands()[0].ExpectedReplies
			}
			kept = append(kept, s)
		}
	}
	e.pending = kept
	e.outbound = e.outbound[:0]
	for _, s := range kept {
		e.outbound = append(e.outbound, outboundChunk{slot: s, data: append([]byte(nil), s.req.Payload()...)})
	}
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	e.rec.PendingDepth(len(kept))
	e.logger.Debug("connection lost", "err", cause, "kept", len(kept))
}
