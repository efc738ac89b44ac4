package settings

import (
	"fmt"
	"strconv"
)

// Coerce converts an all-digit stored string back to an int. Anything
// else (signs, whitespace, decimal points, the empty string) returns
// unchanged. The digit-only rule is a compatibility commitment with
// previously stored data: "42" and "007" coerce, "4.5" and "-1" do not.
func Coerce(raw string) any {
	if !isDigits(raw) {
		return raw
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Out of int range; keep the stored string.
		return raw
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// valueString renders a primitive the way the string-only fallback store
// persists it.
func valueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// encodeValue and decodeValue translate primitives to and from the byte
// representation used by the secondary backend. A one-byte kind tag keeps
// ints, floats, and strings distinct so values survive the round trip
// exactly.

func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return append([]byte("s:"), val...), nil
	case int:
		return []byte("i:" + strconv.Itoa(val)), nil
	case int64:
		return []byte("i:" + strconv.FormatInt(val, 10)), nil
	case float64:
		return []byte("f:" + strconv.FormatFloat(val, 'g', -1, 64)), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T (want string or number)", v)
	}
}

func decodeValue(b []byte) (any, error) {
	if len(b) < 2 || b[1] != ':' {
		return nil, fmt.Errorf("malformed stored value %q", b)
	}
	body := string(b[2:])
	switch b[0] {
	case 's':
		return body, nil
	case 'i':
		n, err := strconv.Atoi(body)
		if err != nil {
			return nil, fmt.Errorf("malformed stored int %q: %w", body, err)
		}
		return n, nil
	case 'f':
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed stored float %q: %w", body, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", string(b[0]))
	}
}
