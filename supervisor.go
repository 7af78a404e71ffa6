package gostomp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	director "github.com/relistan/go-director"

	"github.com/batchcorp/gostomp/frame"
	"github.com/batchcorp/gostomp/internal/backoff"
)

// errStopped is returned internally from a reconnect-loop iteration to
// tell the director.Looper to stop; it never escapes the package.
var errStopped = errors.New("gostomp: supervisor stopped")

// supervisor owns the reconnect loop and the single active session, if
// any. Every Conn handle obtained from Dial or Clone points at the same
// supervisor; it is torn down once the last handle is closed.
type supervisor struct {
	network, addr string
	opts          *options
	registry      *registry

	looper director.Looper

	refcount int32
	closed   int32
	closeCh  chan struct{}
	inbound  chan ReceivedFrame

	mu  sync.Mutex
	cur *activeSession
}

// deliverInbound hands rf to whatever is reading Conn.Frames(), or drops
// it silently if the supervisor has already been shut down.
func (s *supervisor) deliverInbound(rf ReceivedFrame) {
	select {
	case s.inbound <- rf:
	case <-s.closeCh:
	}
}

// activeSession is one established TCP connection plus STOMP session.
// A new one is created on every (re)connect.
type activeSession struct {
	netConn net.Conn
	opts    *options
	sup     *supervisor

	version   string
	sessionID string
	server    string

	sendPeriod time.Duration
	recvPeriod time.Duration

	writeCh chan writeRequest
	lastRX  int64 // unix nanos, updated atomically by the reader goroutine

	errOnce sync.Once
	errCh   chan error
	failErr error
}

// fail tears the session down exactly once: it records err as the
// session's terminal error, closes errCh so every goroutine and caller
// blocked on it (the reader, the writer, the watchdog, and any in-flight
// supervisor.write call) wakes up, and closes the socket so a blocked
// Read unblocks with an error of its own.
func (sess *activeSession) fail(err error) {
	sess.errOnce.Do(func() {
		sess.failErr = err
		close(sess.errCh)
		sess.netConn.Close()
	})
}

type writeRequest struct {
	frame *frame.Frame // always non-nil; heartbeats come from the writer's own timer
	errCh chan error
}

// sendDisconnect makes a best-effort attempt to notify the broker this
// session is going away, writing straight to the socket instead of
// going through writeCh since the writer goroutine may already be
// exiting by the time shutdown runs. It does not wait for a RECEIPT;
// Conn.Disconnect is the receipted, graceful path for callers that need
// to know the broker saw it before the socket closes.
func (sess *activeSession) sendDisconnect() {
	sess.netConn.SetWriteDeadline(time.Now().Add(sess.opts.writeTimeout))
	sess.netConn.Write(frame.EncodeFrame(frame.New(frame.DISCONNECT)))
	sess.netConn.SetWriteDeadline(time.Time{})
}

func (s *supervisor) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

func (s *supervisor) setCurrent(sess *activeSession) {
	s.mu.Lock()
	s.cur = sess
	s.mu.Unlock()
}

func (s *supervisor) clearCurrent() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
}

func (s *supervisor) current() *activeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// write submits f to the active session's writer and blocks until it is
// handed to the socket (or the session errors out first). It does not
// wait for any broker-side acknowledgement; use sendFrameWithReceipt for
// that.
func (s *supervisor) write(f *frame.Frame) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrClosed
	}
	sess := s.current()
	if sess == nil {
		return ErrNotConnected
	}
	req := writeRequest{frame: f, errCh: make(chan error, 1)}
	select {
	case sess.writeCh <- req:
	case <-sess.errCh:
		return ErrNotConnected
	}
	select {
	case err := <-req.errCh:
		return err
	case <-sess.errCh:
		return ErrNotConnected
	}
}

// sendSubscribe issues the SUBSCRIBE frame for sub against the current
// session. It is also used to replay subscriptions onto a fresh session
// after a reconnect.
func (s *supervisor) sendSubscribe(sub *Subscription) error {
	f := frame.New(frame.SUBSCRIBE, sub.headers...).
		WithHeader(frame.Destination, sub.destination).
		WithHeader(frame.Id, sub.id).
		WithHeader(frame.Ack, sub.ackMode)
	return s.write(f)
}

func (s *supervisor) resubscribeAll() {
	for _, sub := range s.registry.snapshotSubscriptions() {
		if err := s.sendSubscribe(sub); err != nil {
			s.opts.logger.Warningf("gostomp: resubscribe %s failed: %v", sub.id, err)
		}
	}
}

// release drops one reference; the last one tears the supervisor down.
func (s *supervisor) release() {
	if atomic.AddInt32(&s.refcount, -1) > 0 {
		return
	}
	s.shutdown()
}

func (s *supervisor) shutdown() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	if sess := s.current(); sess != nil {
		sess.sendDisconnect()
	}
	close(s.closeCh)
	if s.looper != nil {
		s.looper.Quit()
	}
	if sess := s.current(); sess != nil {
		sess.netConn.Close()
	}
	s.registry.failAllReceipts()
	s.registry.closeAllSubscriptions()
}

// run drives the reconnect loop. The first connection attempt's result
// (nil or an error) is delivered on firstAttempt; every attempt after
// that is handled silently aside from logging, per the stability-aware
// backoff.
func (s *supervisor) run(firstAttempt chan error) {
	b := backoff.New()
	first := true

	s.looper.Loop(func() error {
		if atomic.LoadInt32(&s.closed) != 0 {
			return errStopped
		}

		if !first {
			delay := b.Current()
			select {
			case <-time.After(delay):
			case <-s.closeCh:
				return errStopped
			}
		}

		delayUsed := b.Current()
		attemptStart := time.Now()

		sess, err := s.connectOnce()
		if err != nil {
			s.opts.logger.Warningf("gostomp: connect to %s failed: %v", s.addr, err)
			if first {
				firstAttempt <- err
				return errStopped
			}
			b.Grow()
			return nil
		}

		wasFirst := first
		first = false
		if wasFirst {
			firstAttempt <- nil
		} else if s.opts.metrics != nil {
			s.opts.metrics.Reconnects.Inc()
		}

		s.setCurrent(sess)
		// Replay runs alongside serve: each SUBSCRIBE waits for the
		// session's writer, which only serve starts.
		go s.resubscribeAll()

		sessionErr := sess.serve()
		sessionDuration := time.Since(attemptStart)

		s.clearCurrent()
		s.registry.failAllReceipts()
		s.opts.logger.Warningf("gostomp: session on %s ended: %v", s.addr, sessionErr)

		if backoff.Stable(delayUsed, sessionDuration) {
			b.Reset()
		} else {
			b.Grow()
		}
		return nil
	})
}

// connectOnce dials, performs the CONNECT/CONNECTED handshake, and
// negotiates heartbeats. It does not start the session's background
// goroutines; call serve for that.
func (s *supervisor) connectOnce() (*activeSession, error) {
	netConn, err := net.DialTimeout(s.network, s.addr, s.opts.dialTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	connectFrame := frame.New(frame.CONNECT, s.opts.connectHeaders...).
		WithHeader(frame.AcceptVersion, s.opts.acceptVersion).
		WithHeader(frame.Host, s.opts.host).
		WithHeader(frame.HeartBeat, frame.FormatHeartBeat(
			int(s.opts.heartbeatSend/time.Millisecond),
			int(s.opts.heartbeatRecv/time.Millisecond),
		))
	if s.opts.login != "" {
		connectFrame.WithHeader(frame.Login, s.opts.login).WithHeader(frame.Passcode, s.opts.passcode)
	}

	netConn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	if _, err := netConn.Write(frame.EncodeFrame(connectFrame)); err != nil {
		netConn.Close()
		return nil, errors.Wrap(err, "write CONNECT")
	}
	netConn.SetWriteDeadline(time.Time{})

	netConn.SetReadDeadline(time.Now().Add(s.opts.handshakeTimeout))
	reply, err := readOneFrame(netConn)
	netConn.SetReadDeadline(time.Time{})
	if err != nil {
		netConn.Close()
		return nil, errors.Wrap(err, "read CONNECTED")
	}
	if reply.Command == frame.ERROR {
		netConn.Close()
		return nil, newError(reply)
	}
	if reply.Command != frame.CONNECTED {
		netConn.Close()
		return nil, fmt.Errorf("gostomp: expected CONNECTED, got %s", reply.Command)
	}
	if v := reply.Header.Get(frame.Version); v != "" && v != supportedVersion {
		netConn.Close()
		return nil, ErrUnsupportedVersion
	}

	sx, sy := 0, 0
	if hb, ok := reply.Header.Contains(frame.HeartBeat); ok {
		sx, sy, err = frame.ParseHeartBeat(hb)
		if err != nil {
			netConn.Close()
			return nil, errors.Wrap(err, "broker heart-beat header")
		}
	}
	cx := int(s.opts.heartbeatSend / time.Millisecond)
	cy := int(s.opts.heartbeatRecv / time.Millisecond)
	negotiated := frame.Negotiate(cx, cy, sx, sy)

	sess := &activeSession{
		netConn:    netConn,
		opts:       s.opts,
		sup:        s,
		version:    supportedVersion,
		sessionID:  reply.Header.Get(frame.Session),
		server:     reply.Header.Get(frame.Server),
		sendPeriod: time.Duration(negotiated.SendPeriod) * time.Millisecond,
		recvPeriod: time.Duration(negotiated.RecvPeriod) * time.Millisecond,
		writeCh:    make(chan writeRequest, 32),
		errCh:      make(chan error, 1),
	}
	return sess, nil
}

// readOneFrame blocks (subject to any read deadline already set on
// conn) until a single frame or heartbeat has been read, looping past
// any heartbeats that precede it. It is only used during the initial
// handshake, before the session's codec and reader goroutine exist.
func readOneFrame(conn net.Conn) (*frame.Frame, error) {
	codec := frame.NewCodec()
	buf := make([]byte, 4096)
	for {
		f, heartbeat, ok, err := codec.Next()
		if err != nil {
			return nil, err
		}
		if ok && !heartbeat {
			return f, nil
		}
		if ok {
			continue
		}
		n, err := conn.Read(buf)
		if n > 0 {
			codec.Feed(buf[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}
