package gostomp

import (
	"net"
	"time"

	"github.com/batchcorp/gostomp/frame"
)

// fakeBroker is a minimal, scriptable STOMP 1.2 peer used to exercise
// the supervisor's handshake, dispatch, and reconnect behavior without a
// real broker. An in-process fake is the ordinary Go way to test a
// network client's protocol handling without a live dependency.
type fakeBroker struct {
	ln net.Listener
}

func newFakeBroker() (*fakeBroker, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &fakeBroker{ln: ln}, nil
}

func (b *fakeBroker) addr() string {
	return b.ln.Addr().String()
}

func (b *fakeBroker) close() {
	b.ln.Close()
}

// accept blocks for the next inbound connection.
func (b *fakeBroker) accept() (net.Conn, error) {
	return b.ln.Accept()
}

// fakeSession wraps one accepted connection with frame-level read/write
// helpers so test bodies can script a handshake and subsequent exchange
// without hand-rolling the codec each time.
type fakeSession struct {
	conn  net.Conn
	codec *frame.Codec
}

func newFakeSession(conn net.Conn) *fakeSession {
	return &fakeSession{conn: conn, codec: frame.NewCodec()}
}

// readFrame blocks until a single non-heartbeat frame arrives.
func (s *fakeSession) readFrame() (*frame.Frame, error) {
	buf := make([]byte, 4096)
	for {
		f, heartbeat, ok, err := s.codec.Next()
		if err != nil {
			return nil, err
		}
		if ok && !heartbeat {
			return f, nil
		}
		if ok {
			continue
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.codec.Feed(buf[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *fakeSession) writeFrame(f *frame.Frame) error {
	_, err := s.conn.Write(frame.EncodeFrame(f))
	return err
}

// handshake reads the client's CONNECT and replies CONNECTED with the
// given heart-beat header value, returning the CONNECT frame so the test
// can inspect login/host/client-supplied headers.
func (s *fakeSession) handshake(heartBeat string) (*frame.Frame, error) {
	connectFrame, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	reply := frame.New(frame.CONNECTED, frame.Version, "1.2")
	if heartBeat != "" {
		reply.WithHeader(frame.HeartBeat, heartBeat)
	}
	if err := s.writeFrame(reply); err != nil {
		return nil, err
	}
	return connectFrame, nil
}

func (s *fakeSession) close() {
	s.conn.Close()
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
