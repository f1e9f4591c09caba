package stratum

import (
	"bytes"
	"strconv"
)

// sniffServerCall peeks at a decoded line and extracts the method name when
// the frame is a server-initiated call, without a full JSON unmarshal. The
// bool result is false for responses (no "method" key) and for anything the
// sniffer cannot follow; callers fall back to the full decoder in that case.
func sniffServerCall(data []byte) (string, bool) {
	methodIdx := bytes.Index(data, []byte(`"method"`))
	if methodIdx < 0 {
		return "", false
	}
	methodStart, ok := findValueStart(data, methodIdx+len(`"method"`))
	if !ok {
		return "", false
	}
	if methodStart >= len(data) || data[methodStart] != '"' {
		return "", false
	}
	methodStart++
	methodEnd := methodStart
	for methodEnd < len(data) {
		switch data[methodEnd] {
		case '\\':
			methodEnd += 2
			continue
		case '"':
			return string(data[methodStart:methodEnd]), true
		default:
			methodEnd++
		}
	}
	return "", false
}

// sniffResponseID extracts the numeric "id" of a response frame. Responses
// with a null or non-integer id report ok=false.
func sniffResponseID(data []byte) (uint64, bool) {
	idIdx := bytes.Index(data, []byte(`"id"`))
	if idIdx < 0 {
		return 0, false
	}
	idStart, ok := findValueStart(data, idIdx+len(`"id"`))
	if !ok {
		return 0, false
	}
	val, next, ok := parseJSONValue(data, idStart)
	if !ok {
		return 0, false
	}
	if next < len(data) && (data[next] == '.' || data[next] == 'e' || data[next] == 'E') {
		return 0, false
	}
	n, ok := val.(int64)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func findValueStart(data []byte, idx int) (int, bool) {
	for idx < len(data) && data[idx] != ':' {
		idx++
	}
	if idx >= len(data) {
		return 0, false
	}
	idx++
	for idx < len(data) {
		switch data[idx] {
		case ' ', '\t', '\n', '\r':
			idx++
			continue
		default:
			return idx, true
		}
	}
	return 0, false
}

func parseJSONValue(data []byte, idx int) (any, int, bool) {
	if idx >= len(data) {
		return nil, idx, false
	}
	switch data[idx] {
	case '"':
		i := idx + 1
		for i < len(data) {
			if data[i] == '\\' {
				i++
				if i >= len(data) {
					return nil, idx, false
				}
			} else if data[i] == '"' {
				str, err := strconv.Unquote(string(data[idx : i+1]))
				if err != nil {
					return nil, idx, false
				}
				return str, i + 1, true
			}
			i++
		}
		return nil, idx, false
	case 'n':
		if len(data) >= idx+4 && string(data[idx:idx+4]) == "null" {
			return nil, idx + 4, true
		}
	case 't':
		if len(data) >= idx+4 && string(data[idx:idx+4]) == "true" {
			return true, idx + 4, true
		}
	case 'f':
		if len(data) >= idx+5 && string(data[idx:idx+5]) == "false" {
			return false, idx + 5, true
		}
	default:
		if data[idx] == '-' || (data[idx] >= '0' && data[idx] <= '9') {
			val, next, ok := parseInt64(data, idx)
			if !ok {
				return nil, idx, false
			}
			return val, next, true
		}
	}
	return nil, idx, false
}

func parseInt64(data []byte, idx int) (int64, int, bool) {
	if idx >= len(data) {
		return 0, idx, false
	}
	sign := int64(1)
	if data[idx] == '-' {
		sign = -1
		idx++
	}
	start := idx
	var val int64
	for idx < len(data) && data[idx] >= '0' && data[idx] <= '9' {
		val = val*10 + int64(data[idx]-'0')
		idx++
	}
	if idx == start {
		return 0, idx, false
	}
	return val * sign, idx, true
}
