package stratum

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// Client is the synchronous facade over the I/O task. All methods are safe
// for use from one caller goroutine; the Client keeps an eventually
// consistent mirror of the protocol state (difficulty, extranonce, job
// table) that is refreshed from the event stream on every entry point, so
// notifications arriving while a call blocks are never lost.
type Client struct {
	params ConnectionParams
	conn   *conn
	stats  *ConnStats

	mu              sync.Mutex
	notification    *JobNotification
	extranonce1     string
	extranonce2Size int
	extranonce2     uint32
	difficulty      float64
	jobs            map[string]jobSnapshot
	closed          bool
	closeErr        *Error
}

// Connect dials the pool, subscribes, authorizes and waits for the first
// job notification. Any failure along the way closes the socket and is
// returned as a single error.
func Connect(params ConnectionParams) (*Client, error) {
	params.applyDefaults()
	if err := params.validate(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(params.Hostname, strconv.Itoa(params.Port))
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, newError(KindTransport, "connect", err)
	}

	stats := newConnStats()
	c := &Client{
		params:     params,
		conn:       newConn(netConn, stats),
		stats:      stats,
		difficulty: 1.0,
		jobs:       make(map[string]jobSnapshot, 8),
	}
	c.conn.start()

	if err := c.handshake(); err != nil {
		c.Close()
		return nil, err
	}
	logger.Info("connected", "pool", params.Hostname, "port", params.Port, "worker", params.WorkerName)
	return c, nil
}

func (c *Client) handshake() error {
	out, err := c.roundTrip(command{kind: cmdSubscribe, userAgent: c.params.UserAgent, timeout: c.params.ResponseTimeout})
	if err != nil {
		return err
	}
	extranonce1, size, perr := parseSubscribeResult(out.result)
	if perr != nil {
		return newError(KindProtocolShape, "subscribe", perr)
	}
	c.mu.Lock()
	c.extranonce1 = extranonce1
	c.extranonce2Size = size
	c.extranonce2 = 0
	c.mu.Unlock()

	out, err = c.roundTrip(command{kind: cmdAuthorize, worker: c.params.WorkerName, password: c.params.Password, timeout: c.params.ResponseTimeout})
	if err != nil {
		return err
	}
	authorized, perr := parseBoolResult(out.result)
	if perr != nil {
		return newError(KindProtocolShape, "authorize", perr)
	}
	if !authorized {
		return newErrorf(KindRPC, "authorize", "worker %q not authorized", c.params.WorkerName)
	}

	return c.waitFirstJob(firstNotifyTimeout)
}

// waitFirstJob returns immediately when a notification already reached the
// mirror while the handshake round-trips were pumping events.
func (c *Client) waitFirstJob(timeout time.Duration) error {
	c.mu.Lock()
	c.drainEventsLocked()
	have := c.notification != nil
	c.mu.Unlock()
	if have {
		return nil
	}
	return c.WaitNewJob(timeout)
}

// roundTrip sends one tracked command and blocks for its outcome, applying
// any state events that arrive in the meantime.
func (c *Client) roundTrip(cmd command) (callOutcome, error) {
	if err := c.aliveErr(); err != nil {
		return callOutcome{}, err
	}
	cmd.reply = make(chan callOutcome, 1)
	if cmd.timeout <= 0 {
		cmd.timeout = defaultResponseTimeout
	}

	select {
	case c.conn.commands <- cmd:
	case <-c.conn.done:
		return callOutcome{}, c.terminalErr()
	}

	// The I/O task enforces the deadline; the hard timer here only guards
	// against the whole task dying between expiry sweeps.
	guard := time.NewTimer(cmd.timeout + 2*time.Second)
	defer guard.Stop()
	for {
		select {
		case out := <-cmd.reply:
			if out.err != nil {
				return callOutcome{}, out.err
			}
			return out, nil
		case ev := <-c.conn.events:
			c.mu.Lock()
			c.applyEventLocked(ev)
			c.mu.Unlock()
		case <-c.conn.done:
			c.drainReply(cmd.reply)
			return callOutcome{}, c.terminalErr()
		case <-guard.C:
			return callOutcome{}, newErrorf(KindTimeout, "call", "no outcome within guard window")
		}
	}
}

func (c *Client) drainReply(reply chan callOutcome) {
	select {
	case <-reply:
	default:
	}
}

// WaitNewJob blocks until the server announces a job, applying state events
// as they arrive. Returns a timeout error when none arrives in time.
func (c *Client) WaitNewJob(timeout time.Duration) error {
	if err := c.aliveErr(); err != nil {
		return err
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev := <-c.conn.events:
			c.mu.Lock()
			c.applyEventLocked(ev)
			c.mu.Unlock()
			if ev.kind == eventJob {
				return nil
			}
			if ev.kind == eventClosed {
				return c.terminalErr()
			}
		case <-c.conn.done:
			return c.terminalErr()
		case <-deadline.C:
			return newErrorf(KindTimeout, "notify", "no job within %s", timeout)
		}
	}
}

// BuildCurrentJob applies the given extranonce2 to the latest notification
// and returns a hashable Job. Pure with respect to network state.
func (c *Client) BuildCurrentJob(extranonce2 uint32) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainEventsLocked()

	if c.notification == nil {
		return nil, newErrorf(KindLocalReject, "build", "no job notification received yet")
	}
	snap, ok := c.jobs[c.notification.JobID]
	if !ok {
		snap = jobSnapshot{extranonce1: c.extranonce1, extranonce2Size: c.extranonce2Size}
	}
	return buildJob(c.notification, snap.extranonce1, snap.extranonce2Size, extranonce2, c.difficulty)
}

// NextExtranonce2 mints the next extranonce2 counter value. The counter
// restarts at zero whenever the pool changes extranonce parameters or the
// active job.
func (c *Client) NextExtranonce2() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainEventsLocked()
	v := c.extranonce2
	c.extranonce2++
	return v
}

// Submit sends a solved share. Empty results and job IDs the pool has
// evicted are rejected locally without touching the wire and report
// accepted=false with a nil error; a non-nil error carries the RPC or
// transport failure.
func (c *Client) Submit(res JobResult) (bool, error) {
	c.mu.Lock()
	c.drainEventsLocked()
	if res.Empty() {
		c.mu.Unlock()
		logger.Debug("empty job result not submitted")
		return false, nil
	}
	if _, ok := c.jobs[res.JobID]; !ok {
		c.mu.Unlock()
		logger.Warn("stale share dropped", "job_id", res.JobID)
		c.stats.Rejected.Add(1)
		return false, nil
	}
	if res.WorkerName == "" {
		res.WorkerName = c.params.WorkerName
	}
	c.mu.Unlock()

	c.stats.Submitted.Add(1)
	out, err := c.roundTrip(command{kind: cmdSubmit, submit: res, timeout: c.params.ResponseTimeout})
	if err != nil {
		if kind, ok := KindOf(err); ok && kind == KindLocalReject {
			return false, nil
		}
		c.stats.Rejected.Add(1)
		return false, err
	}
	accepted, perr := parseBoolResult(out.result)
	if perr != nil {
		return false, newError(KindProtocolShape, "submit", perr)
	}
	if accepted {
		c.stats.Accepted.Add(1)
		logger.Debug("share accepted", "job_id", res.JobID)
	} else {
		c.stats.Rejected.Add(1)
		logger.Warn("share rejected", "job_id", res.JobID)
	}
	return accepted, nil
}

// SuggestDifficulty asks the pool for a difficulty. Fire-and-forget: no
// response is tracked.
func (c *Client) SuggestDifficulty(d float64) error {
	if err := c.aliveErr(); err != nil {
		return err
	}
	select {
	case c.conn.commands <- command{kind: cmdSuggestDifficulty, difficulty: d}:
		return nil
	case <-c.conn.done:
		return c.terminalErr()
	}
}

// Difficulty reports the pool difficulty as last announced.
func (c *Client) Difficulty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainEventsLocked()
	return c.difficulty
}

// Close shuts the connection down. The Client is unusable afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.conn.commands <- command{kind: cmdClose}:
	case <-c.conn.done:
	}
	close(c.conn.ownerDone)

	select {
	case <-c.conn.done:
	case <-time.After(2 * time.Second):
		logger.Warn("io task did not stop in time")
	}
}

// --- mirror maintenance ---

// drainEventsLocked folds every queued state event into the mirror.
func (c *Client) drainEventsLocked() {
	for {
		select {
		case ev := <-c.conn.events:
			c.applyEventLocked(ev)
		default:
			return
		}
	}
}

// applyEventLocked replays one I/O-task state change onto the caller-side
// mirror, following the same reset rules as the authoritative state.
func (c *Client) applyEventLocked(ev stateEvent) {
	switch ev.kind {
	case eventJob:
		if ev.notification.CleanJobs {
			clear(c.jobs)
		}
		prevID := ""
		if c.notification != nil {
			prevID = c.notification.JobID
		}
		c.notification = ev.notification
		c.jobs[ev.notification.JobID] = ev.snapshot
		if ev.notification.JobID != prevID {
			c.extranonce2 = 0
		}
	case eventDifficulty:
		c.difficulty = ev.difficulty
	case eventExtranonce:
		c.extranonce1 = ev.extranonce1
		c.extranonce2Size = ev.extranonce2Size
		c.extranonce2 = 0
	case eventClosed:
		c.closed = true
		if ev.err != nil && c.closeErr == nil {
			c.closeErr = ev.err
		}
	}
}

func (c *Client) aliveErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainEventsLocked()
	if !c.closed {
		select {
		case <-c.conn.done:
			c.closed = true
		default:
		}
	}
	if c.closed {
		return c.terminalErrLocked()
	}
	return nil
}

func (c *Client) terminalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalErrLocked()
}

func (c *Client) terminalErrLocked() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	// conn.closeErr is only stable once the I/O task has fully stopped.
	select {
	case <-c.conn.done:
		if err := exportableError(c.conn.closeErr); err != nil {
			return err
		}
	default:
	}
	return newErrorf(KindTransport, "connection", "connection closed")
}
