package frame

import (
	"bytes"
	"fmt"
)

// ParseResult is the outcome of a single Parse call: at most one of Frame
// or Heartbeat is set, or neither is set and Incomplete is true meaning
// the caller must feed more bytes before trying again.
type ParseResult struct {
	Frame      *Frame
	Heartbeat  bool
	Incomplete bool
	// Consumed is the number of bytes of the input slice this call
	// consumed. It is meaningful only when Incomplete is false.
	Consumed int
}

// Parse attempts to extract a single STOMP unit (a frame, or a lone
// heartbeat octet) from the front of input. It never blocks and never
// retains a reference to input: on success it copies everything it needs
// out. If input does not yet contain a complete unit, it returns a
// result with Incomplete set to true and Consumed 0; the caller should
// call Parse again once more bytes have arrived, passing the same bytes
// plus whatever was appended.
//
// Parse is pure and allocation-light, and safe to call repeatedly
// against a growing buffer fed in arbitrary chunk sizes from the
// network.
func Parse(input []byte) (ParseResult, error) {
	if len(input) == 0 {
		return ParseResult{Incomplete: true}, nil
	}

	// A lone LF between frames is a heartbeat, consumed one at a time so
	// a run of them reports back to the caller as that many units. A
	// leading CR-LF is the same tolerance some brokers expect before a
	// real frame and is likewise consumed as a single heartbeat unit.
	if input[0] == '\n' {
		return ParseResult{Heartbeat: true, Consumed: 1}, nil
	}
	if input[0] == '\r' {
		if len(input) < 2 {
			return ParseResult{Incomplete: true}, nil
		}
		if input[1] == '\n' {
			return ParseResult{Heartbeat: true, Consumed: 2}, nil
		}
		return ParseResult{}, fmt.Errorf("bare CR outside a header value")
	}

	rest := input

	lineEnd := bytes.IndexByte(rest, '\n')
	if lineEnd < 0 {
		if len(rest) > 8192 {
			return ParseResult{}, fmt.Errorf("command line exceeds maximum length without terminator")
		}
		return ParseResult{Incomplete: true}, nil
	}
	commandLine := rest[:lineEnd]
	commandLine = bytes.TrimSuffix(commandLine, []byte{'\r'})
	if len(commandLine) == 0 {
		return ParseResult{}, fmt.Errorf("empty command line")
	}
	for _, b := range commandLine {
		if b < 0x20 && b != '\t' {
			return ParseResult{}, fmt.Errorf("control byte in command line")
		}
	}
	command := string(commandLine)

	cursor := lineEnd + 1
	header := &Header{}
	var contentLength int
	var haveContentLength bool

	for {
		if cursor >= len(rest) {
			return ParseResult{Incomplete: true}, nil
		}
		if rest[cursor] == '\n' {
			cursor++
			break
		}
		if rest[cursor] == '\r' && cursor+1 < len(rest) && rest[cursor+1] == '\n' {
			cursor += 2
			break
		}

		headerLineEnd := indexByteFrom(rest, '\n', cursor)
		if headerLineEnd < 0 {
			return ParseResult{Incomplete: true}, nil
		}
		line := rest[cursor:headerLineEnd]
		line = bytes.TrimSuffix(line, []byte{'\r'})

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return ParseResult{}, fmt.Errorf("header line missing colon: %q", line)
		}
		name, err := unescapeValue(line[:colon])
		if err != nil {
			return ParseResult{}, fmt.Errorf("header name: %w", err)
		}
		value, err := unescapeValue(line[colon+1:])
		if err != nil {
			return ParseResult{}, fmt.Errorf("header value: %w", err)
		}
		header.Add(name, value)
		if name == ContentLength && !haveContentLength {
			n, _, err := header.ContentLength()
			if err != nil {
				return ParseResult{}, fmt.Errorf("invalid content-length: %w", err)
			}
			contentLength = n
			haveContentLength = true
		}

		cursor = headerLineEnd + 1
	}

	var body []byte
	if haveContentLength {
		if cursor+contentLength > len(rest) {
			return ParseResult{Incomplete: true}, nil
		}
		body = rest[cursor : cursor+contentLength]
		cursor += contentLength
		if cursor >= len(rest) {
			return ParseResult{Incomplete: true}, nil
		}
		if rest[cursor] != 0 {
			return ParseResult{}, fmt.Errorf("expected NUL terminator after content-length body")
		}
		cursor++
	} else {
		nul := bytes.IndexByte(rest[cursor:], 0)
		if nul < 0 {
			return ParseResult{Incomplete: true}, nil
		}
		body = rest[cursor : cursor+nul]
		cursor += nul + 1
	}

	// Consume a single optional trailing EOL left by some servers after
	// the NUL terminator, without blocking if it hasn't arrived yet: it
	// is not part of this frame's framing, so only take it if present.
	if cursor < len(rest) && rest[cursor] == '\n' {
		cursor++
	} else if cursor+1 < len(rest) && rest[cursor] == '\r' && rest[cursor+1] == '\n' {
		cursor += 2
	}

	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)

	f := &Frame{Command: command, Header: header, Body: bodyCopy}
	return ParseResult{Frame: f, Consumed: cursor}, nil
}

func indexByteFrom(b []byte, c byte, from int) int {
	idx := bytes.IndexByte(b[from:], c)
	if idx < 0 {
		return -1
	}
	return from + idx
}
