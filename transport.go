package stratum

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// transportHooks is the contract the TCP layer exposes upward. Each hook
// receives a control handle that can enqueue outbound bytes or request a
// close; the handle is only valid for the duration of the call.
type transportHooks interface {
	// HandleReadable delivers raw received bytes. The slice is reused by the
	// loop; the hook must not retain it.
	HandleReadable(data []byte, ctl *transportControl)
	// HandleWritable tells the layer it may push more outbound bytes.
	HandleWritable(ctl *transportControl)
	// HandleError reports a socket error. The loop keeps running unless the
	// hook closes.
	HandleError(text string, ctl *transportControl)
	// HandleIdle fires on ticks with no readiness, giving the layer a slot
	// to service its command channel.
	HandleIdle(ctl *transportControl)
}

// transportControl is the sender/closer capability handed to hooks.
type transportControl struct {
	t *tcpTransport
}

// Enqueue appends b to the pending send buffer. Bytes are drained
// opportunistically on subsequent ticks; a partial send keeps the unsent
// suffix queued.
func (c *transportControl) Enqueue(b []byte) {
	if len(b) == 0 {
		return
	}
	c.t.pending = append(c.t.pending, b...)
}

// Close requests loop termination. Shutdown half-closes the send side
// first, then fully closes the socket.
func (c *transportControl) Close() {
	c.t.closeRequested = true
}

type tcpTransport struct {
	conn           net.Conn
	hooks          transportHooks
	pending        []byte
	readBuf        []byte
	closeRequested bool
}

func newTransport(conn net.Conn, hooks transportHooks) *tcpTransport {
	return &tcpTransport{
		conn:    conn,
		hooks:   hooks,
		readBuf: make([]byte, 16*1024),
	}
}

// run drives the readiness loop until the peer closes, the owner requests a
// close, or the socket dies. It always leaves the socket closed.
func (t *tcpTransport) run() {
	ctl := &transportControl{t: t}
	defer t.shutdown()

	for {
		if t.closeRequested {
			return
		}

		t.hooks.HandleWritable(ctl)
		if len(t.pending) > 0 {
			if ok := t.flushPending(ctl); !ok {
				continue
			}
		}
		if t.closeRequested {
			return
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			t.hooks.HandleError(fmt.Sprintf("set read deadline: %v", err), ctl)
			continue
		}
		n, err := t.conn.Read(t.readBuf)
		if n > 0 {
			t.hooks.HandleReadable(t.readBuf[:n], ctl)
		}
		if err == nil {
			continue
		}
		if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
			t.hooks.HandleIdle(ctl)
			continue
		}
		if errors.Is(err, io.EOF) {
			// Zero-length receive: the peer closed. Terminate cleanly.
			logger.Info("peer closed connection", "remote", t.remote())
			t.hooks.HandleError("peer closed", ctl)
			return
		}
		if errors.Is(err, net.ErrClosed) {
			return
		}
		t.hooks.HandleError(err.Error(), ctl)
	}
}

// flushPending drains as much of the send buffer as the socket accepts this
// tick. Returns false when an error was reported and the caller should
// re-check close state.
func (t *tcpTransport) flushPending(ctl *transportControl) bool {
	if err := t.conn.SetWriteDeadline(time.Now().Add(stratumWriteTimeout)); err != nil {
		t.hooks.HandleError(fmt.Sprintf("set write deadline: %v", err), ctl)
		return false
	}
	n, err := t.conn.Write(t.pending)
	if n > 0 {
		remainder := len(t.pending) - n
		copy(t.pending, t.pending[n:])
		t.pending = t.pending[:remainder]
	}
	if err != nil {
		if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
			// Unsent suffix stays queued for the next tick.
			return true
		}
		t.hooks.HandleError(fmt.Sprintf("send: %v", err), ctl)
		return false
	}
	return true
}

func (t *tcpTransport) shutdown() {
	if tc, ok := t.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_ = t.conn.Close()
}

func (t *tcpTransport) remote() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "?"
}
