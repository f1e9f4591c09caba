package stratum

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

var (
	hexNibbleLUT   [256]byte
	hexPairByteLUT [65536]uint16
)

func init() {
	for i := range hexNibbleLUT {
		hexNibbleLUT[i] = 0xff
	}
	for c := byte('0'); c <= '9'; c++ {
		hexNibbleLUT[c] = c - '0'
	}
	for c := byte('a'); c <= 'f'; c++ {
		hexNibbleLUT[c] = c - 'a' + 10
	}
	for c := byte('A'); c <= 'F'; c++ {
		hexNibbleLUT[c] = c - 'A' + 10
	}

	// 2-byte LUT: maps (hi<<8)|lo => decoded byte, or 0x100 for invalid.
	for i := range hexPairByteLUT {
		hexPairByteLUT[i] = 0x100
	}
	for hi := 0; hi < 256; hi++ {
		h := hexNibbleLUT[hi]
		if h == 0xff {
			continue
		}
		for lo := 0; lo < 256; lo++ {
			l := hexNibbleLUT[lo]
			if l == 0xff {
				continue
			}
			hexPairByteLUT[(hi<<8)|lo] = uint16((h << 4) | l)
		}
	}
}

func decodeHexString(src string) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("odd hex length %d", len(src))
	}
	dst := make([]byte, len(src)/2)
	if err := decodeHexToFixedBytes(dst, src); err != nil {
		return nil, err
	}
	return dst, nil
}

func decodeHexToFixedBytes(dst []byte, src string) error {
	if len(src) != len(dst)*2 {
		return fmt.Errorf("expected %d hex characters, got %d", len(dst)*2, len(src))
	}
	for i := range dst {
		v := hexPairByteLUT[int(src[i*2])<<8|int(src[i*2+1])]
		if v > 0xff {
			return fmt.Errorf("invalid hex digit in %q", src)
		}
		dst[i] = byte(v)
	}
	return nil
}

func encodeHexString(src []byte) string {
	return hex.EncodeToString(src)
}

func parseUint32BEHex(hexStr string) (uint32, error) {
	if len(hexStr) != 8 {
		return 0, fmt.Errorf("expected 8 hex characters, got %d", len(hexStr))
	}
	var b [4]byte
	if err := decodeHexToFixedBytes(b[:], hexStr); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func uint32ToBEHex(v uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return hex.EncodeToString(buf[:])
}

// uint32ToLEHex renders v with its bytes reversed relative to the host u32:
// the byte order the pool expects for submitted ntime and nonce fields.
func uint32ToLEHex(v uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return hex.EncodeToString(buf[:])
}

// hexReverse reverses the sequence of byte pairs of an even-length hex
// string: "1a44b9f2" becomes "f2b9441a". Odd length is a programmer error.
func hexReverse(s string) string {
	if len(s)%2 != 0 {
		panic(fmt.Sprintf("hexReverse: odd-length input %q", s))
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i += 2 {
		j := len(s) - 2 - i
		out[j] = s[i]
		out[j+1] = s[i+1]
	}
	return string(out)
}

// extranonce2Hex renders v big-endian, lowercase, zero-padded to exactly
// size bytes. Values wider than size are truncated to the low size bytes,
// matching the counter wrap the pool's search space implies.
func extranonce2Hex(v uint32, size int) string {
	if size <= 0 {
		return ""
	}
	buf := make([]byte, size)
	for i := size - 1; i >= 0 && v != 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return hex.EncodeToString(buf)
}
