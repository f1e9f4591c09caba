package stratum

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind partitions every failure the client can surface. Transport,
// Framing and ProtocolShape are connection-fatal: the current call fails and
// the socket is closed. RPC, Timeout and LocalReject are per-call: the
// connection stays usable. OwnerGone never escapes the I/O task.
type ErrorKind int

const (
	// KindTransport covers socket open/read/write/close failures and a peer
	// close mid-frame.
	KindTransport ErrorKind = iota
	// KindFraming covers JSON parse failures and oversized lines.
	KindFraming
	// KindProtocolShape covers structurally valid JSON whose required fields
	// are missing or mistyped.
	KindProtocolShape
	// KindRPC carries a non-null server error object for a tracked call.
	KindRPC
	// KindTimeout means the facade deadline elapsed before a response.
	KindTimeout
	// KindLocalReject means a submit was refused before any wire send:
	// unknown or evicted job_id, or an empty JobResult.
	KindLocalReject
	// kindOwnerGone is internal: the caller side went away while the I/O
	// task was still running.
	kindOwnerGone
)

var errorKindNames = []string{
	"transport",
	"framing",
	"protocol",
	"rpc",
	"timeout",
	"reject",
	"owner-gone",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return "unknown"
}

// Error is the single error type returned by the client. Payload holds the
// server's error object verbatim for KindRPC.
type Error struct {
	Kind    ErrorKind
	Op      string
	Payload json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("stratum %s: %s: %v", e.Kind, e.Op, e.Err)
	case len(e.Payload) > 0:
		return fmt.Sprintf("stratum %s: %s: %s", e.Kind, e.Op, e.Payload)
	default:
		return fmt.Sprintf("stratum %s: %s", e.Kind, e.Op)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error tears down the connection.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindTransport, KindFraming, KindProtocolShape:
		return true
	default:
		return false
	}
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func newErrorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func rpcError(op string, payload json.RawMessage) *Error {
	return &Error{Kind: KindRPC, Op: op, Payload: append(json.RawMessage(nil), payload...)}
}

// KindOf extracts the ErrorKind from err, or ok=false when err is not a
// client error.
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if !errors.As(err, &ce) {
		return 0, false
	}
	return ce.Kind, true
}
