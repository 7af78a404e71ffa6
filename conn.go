// Package gostomp is an asynchronous STOMP 1.2 client. A Conn dials a
// broker, negotiates heartbeats, and keeps the session alive across
// drops by reconnecting with a stability-aware backoff, replaying open
// subscriptions on every new session.
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
)

const supportedVersion = "1.2"

// Conn is a handle onto a supervised STOMP connection. The zero value is
// not usable; obtain one from Dial. A Conn is safe for concurrent use by
// multiple goroutines. Clone returns an additional handle sharing the
// same underlying session; the connection is torn down only once every
// handle obtained from Dial/Clone has been Closed.
type Conn struct {
	sup      *supervisor
	closeOne sync.Once
}

// Dial connects to a STOMP broker at addr over network (almost always
// "tcp"), blocking until the initial CONNECTED frame arrives or
// WithHandshakeTimeout elapses. Once established, the returned Conn
// reconnects automatically in the background on session loss.
func Dial(network, addr string, opts ...Option) (*Conn, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.host == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			o.host = host
		} else {
			o.host = addr
		}
	}

	sup := &supervisor{
		network:  network,
		addr:     addr,
		opts:     o,
		registry: newRegistry(),
		refcount: 1,
		closeCh:  make(chan struct{}),
		inbound:  make(chan ReceivedFrame, 64),
	}
	sup.looper = director.NewFreeLooper(director.FOREVER, make(chan error, 1))

	firstAttempt := make(chan error, 1)
	go sup.run(firstAttempt)

	select {
	case err := <-firstAttempt:
		if err != nil {
			sup.shutdown()
			return nil, err
		}
	case <-time.After(o.handshakeTimeout + o.dialTimeout):
		sup.shutdown()
		return nil, ErrHandshakeTimeout
	}

	return &Conn{sup: sup}, nil
}

// Close releases this handle. The underlying connection is torn down
// once every handle has been closed.
func (c *Conn) Close() error {
	c.closeOne.Do(func() {
		c.sup.release()
	})
	return nil
}

// Clone returns an additional handle to the same supervised connection.
// Each returned handle must be Closed independently.
func (c *Conn) Clone() *Conn {
	atomic.AddInt32(&c.sup.refcount, 1)
	return &Conn{sup: c.sup}
}

// Connected reports whether a session is currently established.
func (c *Conn) Connected() bool {
	return c.sup.isConnected()
}

// Send transmits a SEND frame outside of any transaction.
func (c *Conn) Send(destination, contentType string, body []byte, headers ...string) error {
	f := frame.New(frame.SEND, headers...).WithHeader(frame.Destination, destination).WithBody(body)
	if contentType != "" {
		f.WithHeader(frame.ContentType, contentType)
	}
	return c.sendFrame(f)
}

// SendWithReceipt transmits a SEND frame and blocks until the broker
// acknowledges it with a RECEIPT frame, or the receipt timeout elapses.
func (c *Conn) SendWithReceipt(destination, contentType string, body []byte, headers ...string) error {
	f := frame.New(frame.SEND, headers...).WithHeader(frame.Destination, destination).WithBody(body)
	if contentType != "" {
		f.WithHeader(frame.ContentType, contentType)
	}
	return c.sendFrameWithReceipt(f)
}

// SendConfirmed transmits a SEND frame and blocks until the broker
// acknowledges it with a RECEIPT frame or timeout elapses, using a
// deadline specific to this call instead of the connection's configured
// WithReceiptTimeout.
func (c *Conn) SendConfirmed(destination, contentType string, body []byte, timeout time.Duration, headers ...string) error {
	f := frame.New(frame.SEND, headers...).WithHeader(frame.Destination, destination).WithBody(body)
	if contentType != "" {
		f.WithHeader(frame.ContentType, contentType)
	}
	return c.sendFrameWithReceiptTimeout(f, timeout)
}

// SubscribeOptions carries the extra, less-common knobs exposed by
// SubscribeWithOptions beyond the (destination, ackMode) pair every
// subscription needs.
type SubscribeOptions struct {
	// Headers are forwarded verbatim on the SUBSCRIBE frame and
	// replayed unchanged on every resubscribe after a reconnect.
	Headers []string
	// DurableQueue, if non-empty, is sent as the broker-specific
	// "activemq.subscriptionName" header that requests a durable
	// topic subscription surviving this client's absence. It is
	// meaningless to brokers that don't recognize the extension, which
	// simply ignore an unrecognized header per the STOMP spec.
	DurableQueue string
}

// Subscribe registers a new subscription and returns a handle whose C()
// channel receives every MESSAGE delivered for it. The subscription
// survives reconnects. It is equivalent to SubscribeWithOptions with
// headers as the extra headers and no durable queue name.
func (c *Conn) Subscribe(destination, ackMode string, headers ...string) (*Subscription, error) {
	return c.SubscribeWithOptions(destination, ackMode, SubscribeOptions{Headers: headers})
}

// SubscribeWithOptions is Subscribe plus broker-specific extras: extra
// headers forwarded verbatim, and an optional durable queue/subscription
// name.
func (c *Conn) SubscribeWithOptions(destination, ackMode string, opts SubscribeOptions) (*Subscription, error) {
	headers := opts.Headers
	if opts.DurableQueue != "" {
		headers = append(append([]string{}, headers...), "activemq.subscriptionName", opts.DurableQueue)
	}
	sub := &Subscription{
		id:          c.sup.registry.allocSubID(),
		destination: destination,
		ackMode:     ackMode,
		headers:     headers,
		c:           c,
		msgs:        make(chan *Message, 64),
		done:        make(chan struct{}),
	}
	c.sup.registry.addSubscription(sub)
	if err := c.sup.sendSubscribe(sub); err != nil && !errors.Is(err, ErrNotConnected) {
		c.sup.registry.removeSubscription(sub.id)
		return nil, err
	}
	if c.sup.opts.metrics != nil {
		c.sup.opts.metrics.ActiveSubscriptions.Inc()
	}
	return sub, nil
}

func (c *Conn) unsubscribe(sub *Subscription) error {
	c.sup.registry.removeSubscription(sub.id)
	err := c.sendFrame(frame.New(frame.UNSUBSCRIBE).WithHeader(frame.Id, sub.id))
	sub.closeDelivery()
	if c.sup.opts.metrics != nil {
		c.sup.opts.metrics.ActiveSubscriptions.Dec()
	}
	return err
}

// Ack acknowledges msg outside of any transaction.
func (c *Conn) Ack(msg *Message) error {
	return c.ackFrame(msg, frame.ACK, "")
}

// Nack negatively acknowledges msg outside of any transaction.
func (c *Conn) Nack(msg *Message) error {
	return c.ackFrame(msg, frame.NACK, "")
}

// ackFrame sends an ACK or NACK for msg. Per STOMP 1.2, the frame is
// identified by echoing the "ack" header observed on the MESSAGE back
// as the "id" header — not by the subscription id plus message-id,
// which is the 1.0/1.1 convention this client doesn't speak.
func (c *Conn) ackFrame(msg *Message, command, transactionID string) error {
	if msg.Subscription.ackMode == frame.AckAuto {
		return nil
	}
	ackToken := msg.Frame.Header.Get(frame.Ack)
	if !msg.Subscription.settlePending(ackToken) {
		return nil
	}
	f := frame.New(command).WithHeader(frame.Id, ackToken)
	if transactionID != "" {
		f.WithHeader(frame.Transaction, transactionID)
	}
	return c.sendFrame(f)
}

// Begin starts a new transaction.
func (c *Conn) Begin() (*Transaction, error) {
	id := fmt.Sprintf("tx-%s", c.sup.registry.allocSubID())
	if err := c.sendFrame(frame.New(frame.BEGIN).WithHeader(frame.Transaction, id)); err != nil {
		return nil, err
	}
	return &Transaction{id: id, c: c}, nil
}

// Disconnect performs the graceful STOMP shutdown handshake (a
// receipted DISCONNECT) and then closes the Conn.
func (c *Conn) Disconnect() error {
	receiptID, ch := c.sup.registry.newReceiptWaiter()
	err := c.sendFrame(frame.New(frame.DISCONNECT).WithHeader(frame.Receipt, receiptID))
	if err == nil {
		select {
		case <-ch:
		case <-time.After(c.sup.opts.receiptTimeout):
			c.sup.registry.forgetReceiptWaiter(receiptID)
		}
	}
	return c.Close()
}

// ReceivedFrame is one element of the stream returned by Frames: a
// server-origin frame that was not consumed internally as a MESSAGE or
// RECEIPT dispatch. Exactly one of Frame or Err is set. Err is populated
// for ERROR frames so callers can react to runtime broker errors without
// the connection treating them as fatal (see the ERROR handling notes
// in the supervisor).
type ReceivedFrame struct {
	Frame *frame.Frame
	Err   *Error
}

// Frames returns the channel of server-origin frames the supervisor does
// not otherwise dispatch: ERROR frames (surfaced via ReceivedFrame.Err)
// and any other server command that isn't MESSAGE or RECEIPT. It is
// shared by every clone of this Conn and is safe to read from multiple
// goroutines, though frames are only delivered to one reader each.
func (c *Conn) Frames() <-chan ReceivedFrame {
	return c.sup.inbound
}

func (c *Conn) sendFrame(f *frame.Frame) error {
	return c.sup.write(f)
}

func (c *Conn) sendFrameWithReceipt(f *frame.Frame) error {
	return c.sendFrameWithReceiptTimeout(f, c.sup.opts.receiptTimeout)
}

func (c *Conn) sendFrameWithReceiptTimeout(f *frame.Frame, timeout time.Duration) error {
	receiptID, ch := c.sup.registry.newReceiptWaiter()
	f.WithHeader(frame.Receipt, receiptID)
	if err := c.sup.write(f); err != nil {
		c.sup.registry.forgetReceiptWaiter(receiptID)
		return err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if reply.Command == frame.ERROR {
			return newError(reply)
		}
		return nil
	case <-time.After(timeout):
		c.sup.registry.forgetReceiptWaiter(receiptID)
		return ErrReceiptTimeout
	}
}
