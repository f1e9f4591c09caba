package stratum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// pendingCall tracks one in-flight request. Entries are removed exactly
// once, by the matching response or by deadline expiry.
type pendingCall struct {
	id       uint64
	method   stratumMethod
	deadline time.Time
}

// serverCall is a decoded server-initiated call. Server calls carry no
// response obligation from the client.
type serverCall struct {
	method string
	params json.RawMessage
}

// rpcResponse is a decoded response correlated back to the request that
// produced it. errPayload is nil for success responses.
type rpcResponse struct {
	id         uint64
	method     stratumMethod
	result     json.RawMessage
	errPayload json.RawMessage
}

// inboundFrame is the tagged union surfaced by Feed: exactly one of call
// and response is set.
type inboundFrame struct {
	call     *serverCall
	response *rpcResponse
}

type rpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// rpcFramer converts between the newline-delimited JSON wire and typed
// frames, mints message IDs, and correlates responses to the methods that
// requested them. It is confined to the I/O task; nothing here locks.
type rpcFramer struct {
	recvBuf []byte
	sendBuf []byte
	scratch []byte
	nextID  uint64
	pending map[uint64]*pendingCall
}

func newRPCFramer() *rpcFramer {
	return &rpcFramer{
		pending: make(map[uint64]*pendingCall, 8),
	}
}

// EncodeRequest serializes {"id":N,"method":M,"params":P} plus newline into
// the outbound buffer and returns the minted ID. Tracked requests get a
// pending entry with the given deadline; untracked ones (fire-and-forget)
// mint an ID but any eventual response is dropped as unknown.
func (f *rpcFramer) EncodeRequest(method stratumMethod, params []any, tracked bool, deadline time.Time) (uint64, error) {
	id := f.nextID
	f.nextID++

	buf := f.scratch[:0]
	buf = append(buf, `{"id":`...)
	buf = strconv.AppendUint(buf, id, 10)
	buf = append(buf, `,"method":`...)
	buf = strconv.AppendQuote(buf, string(method))
	buf = append(buf, `,"params":[`...)
	for i, p := range params {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendJSONValue(buf, p)
		if err != nil {
			return 0, fmt.Errorf("encode %s params: %w", method, err)
		}
	}
	buf = append(buf, ']', '}', '\n')

	f.scratch = buf[:0]
	f.sendBuf = append(f.sendBuf, buf...)
	if tracked {
		f.pending[id] = &pendingCall{id: id, method: method, deadline: deadline}
	}
	logNetMessage("send", buf[:len(buf)-1])
	return id, nil
}

// TakeOutbound hands over the buffered outbound bytes and resets the send
// buffer. The caller owns the returned slice.
func (f *rpcFramer) TakeOutbound() []byte {
	if len(f.sendBuf) == 0 {
		return nil
	}
	out := f.sendBuf
	f.sendBuf = nil
	return out
}

// Feed appends received bytes and decodes every complete line. Partial
// frames stay buffered. A malformed line or one exceeding the maximum frame
// size returns a fatal framing error.
func (f *rpcFramer) Feed(data []byte) ([]inboundFrame, *Error) {
	f.recvBuf = append(f.recvBuf, data...)

	var frames []inboundFrame
	for {
		nl := bytes.IndexByte(f.recvBuf, '\n')
		if nl < 0 {
			if len(f.recvBuf) > maxStratumMessageSize {
				return frames, newErrorf(KindFraming, "recv", "frame exceeds %d bytes", maxStratumMessageSize)
			}
			return frames, nil
		}
		// Decode before compacting: the line slice aliases the buffer.
		line := bytes.TrimSpace(f.recvBuf[:nl])
		var frame *inboundFrame
		var ferr *Error
		switch {
		case len(line) == 0:
		case len(line) > maxStratumMessageSize:
			ferr = newErrorf(KindFraming, "recv", "frame exceeds %d bytes", maxStratumMessageSize)
		default:
			logNetMessage("recv", line)
			frame, ferr = f.decodeLine(line)
		}
		f.recvBuf = append(f.recvBuf[:0], f.recvBuf[nl+1:]...)
		if ferr != nil {
			return frames, ferr
		}
		if frame != nil {
			frames = append(frames, *frame)
		}
	}
}

// decodeLine classifies one wire object. A present "method" marks a server
// call; otherwise the "id" is matched against the pending table. Unknown
// IDs are logged and dropped, never fatal.
func (f *rpcFramer) decodeLine(line []byte) (*inboundFrame, *Error) {
	if method, ok := sniffServerCall(line); ok {
		var env rpcEnvelope
		if err := fastJSONUnmarshal(line, &env); err != nil {
			return nil, newError(KindFraming, "decode", err)
		}
		return &inboundFrame{call: &serverCall{method: method, params: env.Params}}, nil
	}

	// Cheap pre-check: a response whose id is not pending will be dropped
	// anyway, so skip the full decode for it.
	if id, ok := sniffResponseID(line); ok {
		if _, known := f.pending[id]; !known {
			logger.Warn("response for unknown id dropped", "id", id)
			return nil, nil
		}
	}

	var env rpcEnvelope
	if err := fastJSONUnmarshal(line, &env); err != nil {
		return nil, newError(KindFraming, "decode", err)
	}
	if env.Method != "" {
		return &inboundFrame{call: &serverCall{method: env.Method, params: env.Params}}, nil
	}

	id, ok := decodeNumericID(env.ID)
	if !ok {
		logger.Warn("response without usable id dropped", "line", string(line))
		return nil, nil
	}
	call, ok := f.pending[id]
	if !ok {
		logger.Warn("response for unknown id dropped", "id", id)
		return nil, nil
	}
	delete(f.pending, id)

	resp := &rpcResponse{id: id, method: call.method, result: env.Result}
	if isNonNull(env.Error) {
		resp.errPayload = env.Error
	}
	return &inboundFrame{response: resp}, nil
}

// ExpirePending removes and returns every pending call whose deadline has
// passed.
func (f *rpcFramer) ExpirePending(now time.Time) []*pendingCall {
	var expired []*pendingCall
	for id, call := range f.pending {
		if !call.deadline.IsZero() && now.After(call.deadline) {
			expired = append(expired, call)
			delete(f.pending, id)
		}
	}
	return expired
}

// FailAllPending removes and returns every pending call. Used when the
// connection dies so every waiter can be unblocked with a terminal error.
func (f *rpcFramer) FailAllPending() []*pendingCall {
	if len(f.pending) == 0 {
		return nil
	}
	all := make([]*pendingCall, 0, len(f.pending))
	for id, call := range f.pending {
		all = append(all, call)
		delete(f.pending, id)
	}
	return all
}

func (f *rpcFramer) pendingCount() int {
	return len(f.pending)
}

func decodeNumericID(raw json.RawMessage) (uint64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	n, next, ok := parseInt64(trimmed, 0)
	if !ok || next != len(trimmed) || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func isNonNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// appendJSONValue append-encodes common scalar param types without going
// through the general marshaller; anything else falls back to it.
func appendJSONValue(buf []byte, value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return append(buf, "null"...), nil
	case string:
		return strconv.AppendQuote(buf, v), nil
	case bool:
		if v {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case json.Number:
		return append(buf, v...), nil
	case float64:
		return strconv.AppendFloat(buf, v, 'g', -1, 64), nil
	case int:
		return strconv.AppendInt(buf, int64(v), 10), nil
	case int64:
		return strconv.AppendInt(buf, v, 10), nil
	case uint32:
		return strconv.AppendUint(buf, uint64(v), 10), nil
	case uint64:
		return strconv.AppendUint(buf, v, 10), nil
	default:
		b, err := fastJSONMarshal(value)
		if err != nil {
			return buf, err
		}
		return append(buf, b...), nil
	}
}

// logNetMessage mirrors wire traffic to the debug stream.
func logNetMessage(dir string, line []byte) {
	logger.Debug("net", "dir", dir, "msg", string(bytes.TrimSpace(line)))
}
