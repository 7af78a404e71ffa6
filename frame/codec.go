package frame

import (
	"bytes"
	"strconv"
)

// Codec accumulates bytes read off a connection and yields frames and
// heartbeats as complete units become available. It is not safe for
// concurrent use; callers serialize access the same way they serialize
// reads off the underlying connection.
type Codec struct {
	buf []byte
}

// NewCodec returns an empty Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Feed appends newly read bytes to the codec's internal buffer.
func (c *Codec) Feed(b []byte) {
	c.buf = append(c.buf, b...)
}

// Next returns the next decoded unit, if one is fully buffered. ok is
// false when more bytes are needed before a unit is available; callers
// should Feed more data and call Next again. Next may be called
// repeatedly after a single Feed to drain every unit that became
// available in that chunk.
func (c *Codec) Next() (f *Frame, heartbeat bool, ok bool, err error) {
	result, err := Parse(c.buf)
	if err != nil {
		return nil, false, false, err
	}
	if result.Incomplete {
		return nil, false, false, nil
	}
	c.buf = c.buf[result.Consumed:]
	c.compact()
	if result.Heartbeat {
		return nil, true, true, nil
	}
	return result.Frame, false, true, nil
}

// compact drops a fully-drained buffer's backing array so long-lived
// connections don't hold onto an ever-growing allocation across many
// small frames.
func (c *Codec) compact() {
	if len(c.buf) == 0 && cap(c.buf) > 0 {
		c.buf = nil
	}
}

// EncodeFrame renders a frame to its STOMP 1.2 wire form. A content-length
// header is synthesized whenever the body is non-empty and the caller did
// not already set one, so that servers do not need to NUL-scan the body.
func EncodeFrame(f *Frame) []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	header := f.Header
	if header == nil {
		header = &Header{}
	}
	_, hasContentLength := header.Contains(ContentLength)
	needsContentLength := len(f.Body) > 0 && !hasContentLength

	for i := 0; i < header.Len(); i++ {
		key, value := header.GetAt(i)
		buf.WriteString(escapeValue(key))
		buf.WriteByte(':')
		buf.WriteString(escapeValue(value))
		buf.WriteByte('\n')
	}
	if needsContentLength {
		buf.WriteString(ContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// EncodeHeartbeat returns the single-byte wire form of a heartbeat.
func EncodeHeartbeat() []byte {
	return []byte{'\n'}
}
