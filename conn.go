package stratum

import (
	"encoding/json"
	"net"
	"time"
)

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdAuthorize
	cmdSubmit
	cmdSuggestDifficulty
	cmdClose
)

// command is the typed request record the facade sends to the I/O task.
// reply, when non-nil, receives exactly one outcome: response, RPC error,
// timeout, or terminal close.
type command struct {
	kind       commandKind
	userAgent  string
	worker     string
	password   string
	difficulty float64
	submit     JobResult
	timeout    time.Duration
	reply      chan callOutcome
}

type callOutcome struct {
	method stratumMethod
	result json.RawMessage
	err    *Error
}

type eventKind int

const (
	eventJob eventKind = iota
	eventDifficulty
	eventExtranonce
	eventClosed
)

// stateEvent mirrors a server-driven state change out to the facade so the
// caller-side view stays current while a call is blocked.
type stateEvent struct {
	kind            eventKind
	notification    *JobNotification
	snapshot        jobSnapshot
	difficulty      float64
	extranonce1     string
	extranonce2Size int
	err             *Error
}

// conn is the I/O task. It exclusively owns the socket, the framer buffers,
// the pending-call table and the protocol state; the facade reaches it only
// through the command channel and hears back through reply channels and the
// event stream.
type conn struct {
	transport *tcpTransport
	framer    *rpcFramer
	state     protoState
	stats     *ConnStats

	commands  chan command
	ownerDone chan struct{}
	events    chan stateEvent
	waiters   map[uint64]chan callOutcome

	done      chan struct{}
	closed    bool
	closeErr  *Error
	ownerGone bool
}

func newConn(netConn net.Conn, stats *ConnStats) *conn {
	c := &conn{
		framer:    newRPCFramer(),
		state:     newProtoState(),
		stats:     stats,
		commands:  make(chan command, 16),
		ownerDone: make(chan struct{}),
		events:    make(chan stateEvent, stateEventBuffer),
		waiters:   make(map[uint64]chan callOutcome, 4),
		done:      make(chan struct{}),
	}
	c.transport = newTransport(netConn, c)
	return c
}

// start spawns the event loop; done closes once the socket is fully torn
// down.
func (c *conn) start() {
	go func() {
		c.transport.run()
		c.finish()
	}()
}

// finish runs after the transport loop exits and guarantees every waiter
// and the event stream see a terminal signal exactly once.
func (c *conn) finish() {
	if !c.closed {
		c.closed = true
		c.failAllWaiters(nil)
		c.emitEvent(stateEvent{kind: eventClosed})
	}
	close(c.done)
}

// --- transport hooks ---

func (c *conn) HandleReadable(data []byte, ctl *transportControl) {
	frames, err := c.framer.Feed(data)
	for _, frame := range frames {
		switch {
		case frame.call != nil:
			c.dispatchServerCall(frame.call, ctl)
		case frame.response != nil:
			c.resolveResponse(frame.response, ctl)
		}
	}
	if err != nil {
		logger.Error("framing failure", "error", err)
		c.terminalClose(err, ctl)
	}
}

func (c *conn) HandleWritable(ctl *transportControl) {
	ctl.Enqueue(c.framer.TakeOutbound())
}

func (c *conn) HandleError(text string, ctl *transportControl) {
	logger.Error("socket error", "remote", c.transport.remote(), "error", text)
	c.terminalClose(newErrorf(KindTransport, "socket", "%s", text), ctl)
}

func (c *conn) HandleIdle(ctl *transportControl) {
	now := time.Now()
	for _, call := range c.framer.ExpirePending(now) {
		if w, ok := c.waiters[call.id]; ok {
			delete(c.waiters, call.id)
			deliverOutcome(w, callOutcome{
				method: call.method,
				err:    newErrorf(KindTimeout, string(call.method), "no response before deadline"),
			})
		}
	}

	if !c.ownerGone {
		select {
		case cmd := <-c.commands:
			c.processCommand(cmd, ctl)
		case <-c.ownerDone:
			c.ownerGone = true
			logger.Info("owner gone, closing connection", "remote", c.transport.remote())
			c.terminalClose(newErrorf(kindOwnerGone, "close", "owner terminated"), ctl)
			return
		case <-time.After(idleCommandPoll):
			return
		}
	}
	// Drain whatever else queued up without blocking the tick.
	for {
		select {
		case cmd := <-c.commands:
			c.processCommand(cmd, ctl)
		default:
			ctl.Enqueue(c.framer.TakeOutbound())
			return
		}
	}
}

// --- inbound dispatch ---

// dispatchServerCall applies a server-initiated call to protocol state.
// Notifications are applied in receive order, before any later response is
// delivered upward. Shape problems in a notification drop that frame only.
func (c *conn) dispatchServerCall(sc *serverCall, ctl *transportControl) {
	switch stratumMethod(sc.method) {
	case methodNotify:
		n, err := parseNotifyParams(sc.params)
		if err != nil {
			logger.Warn("bad mining.notify dropped", "error", err)
			return
		}
		snap := c.state.applyNotify(n)
		c.stats.JobsReceived.Add(1)
		logger.Debug("new job", "job_id", n.JobID, "clean", n.CleanJobs)
		c.emitEvent(stateEvent{kind: eventJob, notification: n, snapshot: snap})
	case methodSetDifficulty:
		d, err := parseSetDifficultyParams(sc.params)
		if err != nil {
			logger.Warn("bad mining.set_difficulty dropped", "error", err)
			return
		}
		c.state.applySetDifficulty(d)
		logger.Info("difficulty set", "difficulty", d)
		c.emitEvent(stateEvent{kind: eventDifficulty, difficulty: d})
	case methodSetExtranonce:
		extranonce1, size, err := parseSetExtranonceParams(sc.params)
		if err != nil {
			logger.Warn("bad mining.set_extranonce dropped", "error", err)
			return
		}
		c.state.applySetExtranonce(extranonce1, size)
		c.emitEvent(stateEvent{kind: eventExtranonce, extranonce1: extranonce1, extranonce2Size: size})
	case methodReconnect:
		logger.Info("server requested reconnect, closing", "remote", c.transport.remote())
		c.terminalClose(newErrorf(KindTransport, "reconnect", "server requested reconnect"), ctl)
	default:
		logger.Warn("ignoring unknown stratum method", "method", sc.method)
	}
}

// resolveResponse routes a correlated response to its waiter. Subscribe
// results additionally seed the extranonce state; a malformed subscribe
// result is a shape error and tears the connection down.
func (c *conn) resolveResponse(resp *rpcResponse, ctl *transportControl) {
	w, ok := c.waiters[resp.id]
	if !ok {
		logger.Warn("response with no waiter dropped", "id", resp.id, "method", resp.method)
		return
	}
	delete(c.waiters, resp.id)

	if resp.errPayload != nil {
		deliverOutcome(w, callOutcome{method: resp.method, err: rpcError(string(resp.method), resp.errPayload)})
		return
	}

	if resp.method == methodSubscribe {
		extranonce1, size, err := parseSubscribeResult(resp.result)
		if err != nil {
			shapeErr := newError(KindProtocolShape, "subscribe", err)
			deliverOutcome(w, callOutcome{method: resp.method, err: shapeErr})
			c.terminalClose(shapeErr, ctl)
			return
		}
		c.state.applySubscribe(extranonce1, size)
	}
	deliverOutcome(w, callOutcome{method: resp.method, result: resp.result})
}

// --- command processing ---

func (c *conn) processCommand(cmd command, ctl *transportControl) {
	switch cmd.kind {
	case cmdClose:
		c.terminalClose(nil, ctl)
	case cmdSuggestDifficulty:
		if _, err := c.framer.EncodeRequest(methodSuggestDifficulty, suggestDifficultyParams(cmd.difficulty), false, time.Time{}); err != nil {
			logger.Warn("suggest_difficulty encode failed", "error", err)
		}
	case cmdSubscribe:
		c.sendTracked(methodSubscribe, subscribeParams(cmd.userAgent), cmd)
	case cmdAuthorize:
		c.sendTracked(methodAuthorize, authorizeParams(cmd.worker, cmd.password), cmd)
	case cmdSubmit:
		snap, ok := c.state.snapshotFor(cmd.submit.JobID)
		if !ok {
			c.stats.Rejected.Add(1)
			deliverOutcome(cmd.reply, callOutcome{
				method: methodSubmit,
				err:    newErrorf(KindLocalReject, "submit", "unknown job_id %q", cmd.submit.JobID),
			})
			return
		}
		c.sendTracked(methodSubmit, submitParams(cmd.submit, snap), cmd)
	}
}

func (c *conn) sendTracked(method stratumMethod, params []any, cmd command) {
	timeout := cmd.timeout
	if timeout <= 0 {
		timeout = defaultResponseTimeout
	}
	id, err := c.framer.EncodeRequest(method, params, true, time.Now().Add(timeout))
	if err != nil {
		deliverOutcome(cmd.reply, callOutcome{method: method, err: newError(KindTransport, string(method), err)})
		return
	}
	if cmd.reply != nil {
		c.waiters[id] = cmd.reply
	}
}

// --- teardown ---

// terminalClose settles every outstanding waiter, publishes a closed event
// and asks the transport to shut down. err nil means a clean owner-side
// close.
func (c *conn) terminalClose(err *Error, ctl *transportControl) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	c.failAllWaiters(err)
	c.emitEvent(stateEvent{kind: eventClosed, err: exportableError(err)})
	ctl.Close()
}

func (c *conn) failAllWaiters(err *Error) {
	c.framer.FailAllPending()
	terminal := exportableError(err)
	if terminal == nil {
		terminal = newErrorf(KindTransport, "close", "connection closed")
	}
	for id, w := range c.waiters {
		delete(c.waiters, id)
		deliverOutcome(w, callOutcome{err: terminal})
	}
}

// exportableError keeps internal kinds from leaking to callers.
func exportableError(err *Error) *Error {
	if err == nil {
		return nil
	}
	if err.Kind == kindOwnerGone {
		return newErrorf(KindTransport, err.Op, "connection closed")
	}
	return err
}

// emitEvent never blocks the I/O task: when the facade has fallen far
// behind, the oldest event is dropped with a warning.
func (c *conn) emitEvent(ev stateEvent) {
	select {
	case c.events <- ev:
		return
	default:
	}
	select {
	case old := <-c.events:
		logger.Warn("state event dropped, facade lagging", "kind", int(old.kind))
	default:
	}
	select {
	case c.events <- ev:
	default:
	}
}

func deliverOutcome(w chan callOutcome, out callOutcome) {
	if w == nil {
		return
	}
	select {
	case w <- out:
	default:
	}
}
