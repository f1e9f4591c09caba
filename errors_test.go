package stratum

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKindStrings(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want string
	}{
		{KindTransport, "transport"},
		{KindFraming, "framing"},
		{KindProtocolShape, "protocol"},
		{KindRPC, "rpc"},
		{KindTimeout, "timeout"},
		{KindLocalReject, "reject"},
		{ErrorKind(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.kind.String(); got != tc.want {
			t.Fatalf("kind %d string = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestErrorFatalClassification(t *testing.T) {
	fatal := []ErrorKind{KindTransport, KindFraming, KindProtocolShape}
	perCall := []ErrorKind{KindRPC, KindTimeout, KindLocalReject}
	for _, k := range fatal {
		if !(&Error{Kind: k}).Fatal() {
			t.Fatalf("kind %v should be fatal", k)
		}
	}
	for _, k := range perCall {
		if (&Error{Kind: k}).Fatal() {
			t.Fatalf("kind %v should not be fatal", k)
		}
	}
}

func TestErrorWrapAndKindOf(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := newError(KindTransport, "dial", inner)
	if !errors.Is(err, inner) {
		t.Fatal("wrapped error lost")
	}
	kind, ok := KindOf(fmt.Errorf("outer: %w", err))
	if !ok || kind != KindTransport {
		t.Fatalf("KindOf through wrap = (%v, %v)", kind, ok)
	}
	if _, ok := KindOf(fmt.Errorf("plain")); ok {
		t.Fatal("plain error should have no kind")
	}
}

func TestRPCErrorPayloadVerbatim(t *testing.T) {
	payload := json.RawMessage(`[21,"unauthorized",null]`)
	err := rpcError("mining.authorize", payload)
	if string(err.Payload) != string(payload) {
		t.Fatalf("payload = %s", err.Payload)
	}
	if !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("error text = %q", err.Error())
	}
	// The payload is copied, not aliased.
	payload[1] = '9'
	if string(err.Payload) == string(payload) {
		t.Fatal("payload aliased caller memory")
	}
}

func TestOwnerGoneNeverEscapes(t *testing.T) {
	err := exportableError(newErrorf(kindOwnerGone, "close", "owner terminated"))
	if err.Kind != KindTransport {
		t.Fatalf("exported kind = %v, want transport", err.Kind)
	}
	if err := exportableError(nil); err != nil {
		t.Fatalf("nil should stay nil, got %v", err)
	}
}
