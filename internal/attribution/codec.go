// Package attribution encodes builder codes into ERC-8021 data suffixes and
// attaches them to call data.
//
// A schema 0 suffix is laid out as:
//
//	codes (ASCII, comma separated) | codes length (1 byte) | schema id (0x00) | marker (16 bytes)
//
// The marker is 0x8021 repeated eight times. Contracts ignore trailing bytes
// after ABI-encoded arguments, so the suffix never changes call semantics.
package attribution

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SchemaCanonical is the only schema this package emits.
const SchemaCanonical byte = 0x00

// MaxCodesLength is the largest codes section the one-byte length field can describe.
const MaxCodesLength = 255

// Marker terminates every ERC-8021 suffix.
var Marker = common.FromHex("0x80218021802180218021802180218021")

var (
	ErrEmptyCode   = errors.New("empty builder code")
	ErrCodeTooLong = errors.New("builder code too long")
	ErrInvalidCode = errors.New("builder code must be printable ASCII without commas")
)

// Suffix is an encoded attribution suffix. A nil Suffix means attribution is off.
type Suffix []byte

// Hex returns the 0x-prefixed hex form.
func (s Suffix) Hex() string {
	return hexutil.Encode(s)
}

// Empty reports whether s carries no attribution.
func (s Suffix) Empty() bool {
	return len(s) == 0
}

// EncodeSuffix encodes a builder code. An empty or unusable code yields nil,
// which callers treat as "no attribution".
func EncodeSuffix(code string) Suffix {
	s, err := Encode(code)
	if err != nil {
		return nil
	}
	return s
}

// Encode encodes one or more builder codes and reports why a code is unusable.
func Encode(codes ...string) (Suffix, error) {
	if len(codes) == 0 {
		return nil, ErrEmptyCode
	}
	for _, c := range codes {
		if c == "" {
			return nil, ErrEmptyCode
		}
		for i := 0; i < len(c); i++ {
			if c[i] < 0x20 || c[i] > 0x7e || c[i] == ',' {
				return nil, fmt.Errorf("%w: %q", ErrInvalidCode, c)
			}
		}
	}

	joined := strings.Join(codes, ",")
	if len(joined) > MaxCodesLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrCodeTooLong, len(joined))
	}

	out := make([]byte, 0, len(joined)+2+len(Marker))
	out = append(out, joined...)
	out = append(out, byte(len(joined)), SchemaCanonical)
	out = append(out, Marker...)
	return out, nil
}

// HasSuffix reports whether data ends with s. The comparison is done on the
// lower-cased hex form so it matches HasSuffixHex exactly.
func HasSuffix(data []byte, s Suffix) bool {
	if len(data) == 0 || len(s) == 0 {
		return false
	}
	return HasSuffixHex(common.Bytes2Hex(data), common.Bytes2Hex(s))
}

// HasSuffixHex is HasSuffix for hex strings of either case, with or without 0x.
func HasSuffixHex(dataHex, suffixHex string) bool {
	d := normalizeHex(dataHex)
	s := normalizeHex(suffixHex)
	if d == "" || s == "" || len(d)%2 != 0 || len(s)%2 != 0 {
		return false
	}
	return strings.HasSuffix(d, s)
}

// AppendSuffix returns data with s appended. It is idempotent: data that
// already ends with s is returned unchanged (as a copy).
func AppendSuffix(data []byte, s Suffix) []byte {
	if len(s) == 0 || HasSuffix(data, s) {
		return append([]byte{}, data...)
	}
	out := make([]byte, 0, len(data)+len(s))
	out = append(out, data...)
	return append(out, s...)
}

// ParseSuffix decodes a trailing schema 0 suffix from data.
func ParseSuffix(data []byte) ([]string, bool) {
	if len(data) < len(Marker)+2 || !bytes.HasSuffix(data, Marker) {
		return nil, false
	}
	rest := data[:len(data)-len(Marker)]
	if rest[len(rest)-1] != SchemaCanonical {
		return nil, false
	}
	n := int(rest[len(rest)-2])
	rest = rest[:len(rest)-2]
	if n == 0 || n > len(rest) {
		return nil, false
	}
	return strings.Split(string(rest[len(rest)-n:]), ","), true
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return strings.ToLower(s)
}
