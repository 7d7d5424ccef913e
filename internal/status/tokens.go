package status

import (
	"fmt"
	"strconv"
	"strings"
)

// Property is one token of a status body. Bare words have an empty Value.
type Property struct {
	Key   string
	Value string
}

// Tokens splits body on sep and each token at its first '='. Empty tokens
// are skipped; order is preserved.
func Tokens(body string, sep byte) []Property {
	var out []Property
	for len(body) > 0 {
		var tok string
		if i := strings.IndexByte(body, sep); i >= 0 {
			tok, body = body[:i], body[i+1:]
		} else {
			tok, body = body, ""
		}
		if sep != ' ' {
			tok = strings.TrimSpace(tok)
		}
		if tok == "" {
			continue
		}
		k, v, _ := strings.Cut(tok, "=")
		out = append(out, Property{Key: k, Value: v})
	}
	return out
}

// Fields is Tokens with a space separator.
func Fields(body string) []Property {
	return Tokens(body, ' ')
}

// Has reports whether props contains a bare word or key equal to key.
func Has(props []Property, key string) bool {
	for _, p := range props {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Lookup returns the value of the first property named key.
func Lookup(props []Property, key string) (string, bool) {
	for _, p := range props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// MeterGroup holds the tokens of one meter from a '#'-separated meter line.
type MeterGroup struct {
	Number uint16
	Props  []Property
}

// MeterGroups splits a meter body such as "7.nam=LEVEL#7.unit=dBm" into
// per-meter token lists, in order of first appearance. Tokens without a
// numeric prefix are skipped.
func MeterGroups(body string) []MeterGroup {
	var groups []MeterGroup
	index := make(map[uint16]int)
	for _, p := range Tokens(body, '#') {
		num, key, ok := strings.Cut(p.Key, ".")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(num, 10, 16)
		if err != nil {
			continue
		}
		i, seen := index[uint16(n)]
		if !seen {
			i = len(groups)
			index[uint16(n)] = i
			groups = append(groups, MeterGroup{Number: uint16(n)})
		}
		groups[i].Props = append(groups[i].Props, Property{Key: key, Value: p.Value})
	}
	return groups
}

// ParseHex parses a handle or stream id written as hex with or without a
// 0x prefix.
func ParseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// ParseID parses an object id. A 0x prefix selects hex, otherwise decimal.
func ParseID(s string) (uint32, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return ParseHex(s)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// ParseHandle parses a client handle.
func ParseHandle(s string) (uint32, error) {
	return ParseHex(s)
}

func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func ParseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// ParseBool accepts 1/0 and the forms understood by strconv.ParseBool.
func ParseBool(s string) (bool, error) {
	return strconv.ParseBool(s)
}

// Text decodes a string value. The radio sends spaces inside values as 0x7F.
func Text(s string) string {
	return strings.ReplaceAll(s, "\x7f", " ")
}

// ParseError reports a token whose value could not be converted.
type ParseError struct {
	Key   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("status: token %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
