package gostomp

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/batchcorp/gostomp/frame"
)

// serve runs an established session's reader, writer, and (when
// negotiated) heartbeat watchdog concurrently and blocks until one of
// them decides the session is no longer usable. The supervisor's
// reconnect loop calls this once per successful handshake; the time at
// which it returns fixes the session duration that feeds the
// stability-aware backoff decision, and its error is only logged.
func (sess *activeSession) serve() error {
	go sess.readLoop()
	go sess.writeLoop()
	if sess.recvPeriod > 0 {
		go sess.watchdogLoop()
	}
	<-sess.errCh
	return sess.failErr
}

// readLoop decodes frames off the socket and dispatches them until a
// read or protocol error ends the session. It is the only goroutine
// that touches the receive side of the socket or the codec.
func (sess *activeSession) readLoop() {
	codec := frame.NewCodec()
	buf := make([]byte, 4096)
	atomic.StoreInt64(&sess.lastRX, time.Now().UnixNano())

	for {
		f, heartbeat, ok, err := codec.Next()
		if err != nil {
			sess.fail(errors.Wrap(err, "decode frame"))
			return
		}
		if ok {
			if !heartbeat {
				sess.dispatch(f)
			}
			continue
		}

		n, err := sess.netConn.Read(buf)
		if n > 0 {
			atomic.StoreInt64(&sess.lastRX, time.Now().UnixNano())
			codec.Feed(buf[:n])
		}
		if err != nil {
			sess.fail(errors.Wrap(err, "read"))
			return
		}
	}
}

// dispatch routes one decoded, non-heartbeat frame per the supervisor's
// dispatch table: MESSAGE to its subscription, RECEIPT to its waiter,
// ERROR to both a matching waiter (if the "receipt-id" header names one)
// and the inbound Frames() stream, and anything else straight to the
// inbound stream.
func (sess *activeSession) dispatch(f *frame.Frame) {
	if sess.opts.metrics != nil {
		sess.opts.metrics.FramesReceived.Inc()
	}

	switch f.Command {
	case frame.MESSAGE:
		subID := f.Header.Get(frame.Subscription)
		sub, ok := sess.sup.registry.subscription(subID)
		if !ok {
			// Race with Unsubscribe: the broker hadn't yet seen our
			// UNSUBSCRIBE. Drop the orphaned delivery.
			return
		}
		sub.trackPending(f.Header.Get(frame.Ack))
		msg := &Message{
			Frame:        f,
			Destination:  f.Header.Get(frame.Destination),
			Subscription: sub,
		}
		select {
		case sub.msgs <- msg:
		case <-sub.done:
		}
	case frame.RECEIPT:
		sess.sup.registry.resolveReceipt(f.Header.Get(frame.ReceiptId), f)
	case frame.ERROR:
		if receiptID, ok := f.Header.Contains(frame.ReceiptId); ok {
			sess.sup.registry.resolveReceipt(receiptID, f)
		}
		sess.sup.deliverInbound(ReceivedFrame{Err: newError(f)})
	default:
		sess.sup.deliverInbound(ReceivedFrame{Frame: f})
	}
}

// writeLoop drains the outbound command channel in arrival order and
// encodes each frame to the socket, interleaving a single LF heartbeat
// whenever the negotiated send period elapses with nothing else to
// write. It is the only goroutine that touches the send side of the
// socket, so frames are never reordered and a heartbeat never overtakes
// one already queued ahead of it.
func (sess *activeSession) writeLoop() {
	var sendTimer *time.Timer
	if sess.sendPeriod > 0 {
		sendTimer = time.NewTimer(sess.sendPeriod)
		defer sendTimer.Stop()
	}

	for {
		var sendC <-chan time.Time
		if sendTimer != nil {
			sendC = sendTimer.C
		}

		select {
		case req, ok := <-sess.writeCh:
			if !ok {
				return
			}
			err := sess.writeBytes(frame.EncodeFrame(req.frame))
			resetTimer(sendTimer, sess.sendPeriod)
			if err == nil && sess.opts.metrics != nil {
				sess.opts.metrics.FramesSent.Inc()
			}
			select {
			case req.errCh <- err:
			default:
			}
			if err != nil {
				sess.fail(errors.Wrap(err, "write"))
				return
			}

		case <-sendC:
			if err := sess.writeBytes(frame.EncodeHeartbeat()); err != nil {
				sess.fail(errors.Wrap(err, "write heartbeat"))
				return
			}
			resetTimer(sendTimer, sess.sendPeriod)

		case <-sess.errCh:
			return
		}
	}
}

func (sess *activeSession) writeBytes(b []byte) error {
	sess.netConn.SetWriteDeadline(time.Now().Add(sess.opts.writeTimeout))
	_, err := sess.netConn.Write(b)
	sess.netConn.SetWriteDeadline(time.Time{})
	return err
}

func resetTimer(t *time.Timer, d time.Duration) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// watchdogLoop polls the time since the last byte was read off the
// socket and fails the session if it exceeds the negotiated receive
// period times the configured grace multiplier. It only runs when a
// receive period was actually negotiated.
func (sess *activeSession) watchdogLoop() {
	grace := sess.opts.hbGrace
	if grace <= 0 {
		grace = 1.5
	}
	limit := time.Duration(float64(sess.recvPeriod) * grace)

	interval := sess.recvPeriod / 4
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, atomic.LoadInt64(&sess.lastRX))
			if time.Since(last) > limit {
				sess.fail(errHeartbeatTimeout)
				return
			}
		case <-sess.errCh:
			return
		}
	}
}
