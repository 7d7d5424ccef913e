// Package status splits control channel lines into typed messages and
// key=value tokens.
package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyLine     = errors.New("status: empty line")
	ErrUnknownPrefix = errors.New("status: unknown line prefix")
	ErrMalformed     = errors.New("status: malformed line")
)

// Kind is the one-letter prefix of a control channel line.
type Kind byte

const (
	KindStatus  Kind = 'S'
	KindReply   Kind = 'R'
	KindMessage Kind = 'M'
	KindVersion Kind = 'V'
	KindHandle  Kind = 'H'
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindReply:
		return "reply"
	case KindMessage:
		return "message"
	case KindVersion:
		return "version"
	case KindHandle:
		return "handle"
	default:
		return fmt.Sprintf("kind(%q)", byte(k))
	}
}

// Line is one framed control channel line.
//
//	S<handle>|<body>        status, Handle is the originating client
//	R<seq>|<code>|<body>    command reply
//	M<code>|<body>          radio message
//	V<version>              protocol version, Body holds the version text
//	H<handle>               handle assigned to this client
type Line struct {
	Kind   Kind
	Handle uint32
	Seq    uint32
	Code   uint32
	Body   string
}

// ParseLine frames text. Trailing CR/LF are ignored.
func ParseLine(text string) (Line, error) {
	text = strings.TrimRight(text, "\r\n")
	var ln Line
	if text == "" {
		return ln, ErrEmptyLine
	}
	ln.Kind = Kind(text[0])
	rest := text[1:]
	switch ln.Kind {
	case KindStatus:
		head, body, ok := strings.Cut(rest, "|")
		if !ok {
			return ln, fmt.Errorf("%w: status without body: %q", ErrMalformed, text)
		}
		h, err := ParseHex(head)
		if err != nil {
			return ln, fmt.Errorf("%w: status handle: %v", ErrMalformed, err)
		}
		ln.Handle, ln.Body = h, body
	case KindReply:
		parts := strings.SplitN(rest, "|", 3)
		if len(parts) < 2 {
			return ln, fmt.Errorf("%w: reply without code: %q", ErrMalformed, text)
		}
		seq, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return ln, fmt.Errorf("%w: reply sequence: %v", ErrMalformed, err)
		}
		code, err := ParseHex(parts[1])
		if err != nil {
			return ln, fmt.Errorf("%w: reply code: %v", ErrMalformed, err)
		}
		ln.Seq, ln.Code = uint32(seq), code
		if len(parts) == 3 {
			ln.Body = parts[2]
		}
	case KindMessage:
		head, body, ok := strings.Cut(rest, "|")
		if !ok {
			return ln, fmt.Errorf("%w: message without body: %q", ErrMalformed, text)
		}
		code, err := ParseHex(head)
		if err != nil {
			return ln, fmt.Errorf("%w: message code: %v", ErrMalformed, err)
		}
		ln.Code, ln.Body = code, body
	case KindVersion:
		ln.Body = rest
	case KindHandle:
		h, err := ParseHex(rest)
		if err != nil {
			return ln, fmt.Errorf("%w: handle: %v", ErrMalformed, err)
		}
		ln.Handle = h
	default:
		return ln, fmt.Errorf("%w: %q", ErrUnknownPrefix, text[0])
	}
	return ln, nil
}

// ParseVersion reads the major and minor numbers from "1.4.0.0" style text.
func ParseVersion(s string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: version %q", ErrMalformed, s)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("%w: version major: %v", ErrMalformed, err)
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("%w: version minor: %v", ErrMalformed, err)
	}
	return major, minor, nil
}
