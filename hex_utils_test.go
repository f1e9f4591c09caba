package stratum

import (
	"bytes"
	"testing"
)

func TestHexLUTAcceptsUpperAndLower(t *testing.T) {
	dstLower := make([]byte, 4)
	if err := decodeHexToFixedBytes(dstLower, "deadBEEF"); err != nil {
		t.Fatalf("decode lower/mixed: %v", err)
	}

	dstUpper := make([]byte, 4)
	if err := decodeHexToFixedBytes(dstUpper, "DEADBEEF"); err != nil {
		t.Fatalf("decode upper: %v", err)
	}

	if !bytes.Equal(dstLower, dstUpper) {
		t.Fatalf("mixed-case decode mismatch: lower=%x upper=%x", dstLower, dstUpper)
	}

	if _, err := parseUint32BEHex("deadbeef"); err != nil {
		t.Fatalf("parse lower: %v", err)
	}
	got, err := parseUint32BEHex("DEADBEEF")
	if err != nil {
		t.Fatalf("parse upper: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("parse mismatch: got %08x", got)
	}
}

func TestHexDecodeEncodeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"00",
		"0123456789abcdef",
		"81cd02ab7e569e8bcd9317e2fe99f2de44d49ab2b8851ba4a308000000000000",
	}
	for _, src := range cases {
		b, err := decodeHexString(src)
		if err != nil {
			t.Fatalf("decode %q: %v", src, err)
		}
		if got := encodeHexString(b); got != src {
			t.Fatalf("round trip %q: got %q", src, got)
		}
	}

	if _, err := decodeHexString("abc"); err == nil {
		t.Fatal("odd-length decode should fail")
	}
	if _, err := decodeHexString("zz"); err == nil {
		t.Fatal("invalid digit decode should fail")
	}
}

func TestHexReverse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "ab"},
		{"1a44b9f2", "f2b9441a"},
		{"00000001", "01000000"},
		{"4dd7f5c7", "c7f5d74d"},
	}
	for _, tc := range cases {
		if got := hexReverse(tc.in); got != tc.want {
			t.Fatalf("hexReverse(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if got := hexReverse(hexReverse(tc.in)); got != tc.in {
			t.Fatalf("hexReverse not an involution for %q: got %q", tc.in, got)
		}
	}
}

func TestHexReversePanicsOnOddLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on odd-length input")
		}
	}()
	hexReverse("abc")
}

func TestUint32Renderings(t *testing.T) {
	if got := uint32ToBEHex(0x12345678); got != "12345678" {
		t.Fatalf("uint32ToBEHex: got %q", got)
	}
	if got := uint32ToLEHex(0x12345678); got != "78563412" {
		t.Fatalf("uint32ToLEHex: got %q", got)
	}
	if got := uint32ToLEHex(0x9abcdef0); got != "f0debc9a" {
		t.Fatalf("uint32ToLEHex: got %q", got)
	}
}

func TestExtranonce2Hex(t *testing.T) {
	cases := []struct {
		v    uint32
		size int
		want string
	}{
		{0x1234, 3, "001234"},
		{0x1234, 4, "00001234"},
		{0, 4, "00000000"},
		{0x00434104, 4, "00434104"},
		{0xaabbccdd, 2, "ccdd"},
		{1, 8, "0000000000000001"},
		{5, 0, ""},
	}
	for _, tc := range cases {
		if got := extranonce2Hex(tc.v, tc.size); got != tc.want {
			t.Fatalf("extranonce2Hex(%#x, %d) = %q, want %q", tc.v, tc.size, got, tc.want)
		}
	}
}
