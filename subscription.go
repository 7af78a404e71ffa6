package gostomp

import (
	"sync"

	"github.com/batchcorp/gostomp/frame"
)

// Message is a delivered STOMP MESSAGE frame, handed to a subscriber
// along with the subscription it arrived on so Ack/Nack don't need a
// separate lookup.
type Message struct {
	Frame        *frame.Frame
	Destination  string
	Subscription *Subscription
}

// Subscription represents one SUBSCRIBE registered with the broker. It
// survives reconnects: the supervisor replays the original SUBSCRIBE
// frame against the new session and keeps delivering onto the same
// channel.
type Subscription struct {
	id          string
	destination string
	ackMode     string
	headers     []string
	c           *Conn
	msgs        chan *Message
	done        chan struct{}
	closeOnce   sync.Once

	pendingMu sync.Mutex
	// pending holds the "ack" header tokens delivered and not yet acked,
	// oldest first. STOMP 1.2 scopes ack/nack to this token, not to
	// "message-id" (a 1.0/1.1 convention this client doesn't speak).
	// Under client-individual ack mode, Ack/Nack removes exactly the
	// named token; under client ack mode it is cumulative, so Ack/Nack
	// removes the named token and everything delivered before it.
	pending []string
}

func (s *Subscription) trackPending(ackToken string) {
	if s.ackMode == frame.AckAuto {
		return
	}
	s.pendingMu.Lock()
	s.pending = append(s.pending, ackToken)
	s.pendingMu.Unlock()
}

// settlePending removes ackToken from the pending list, and everything
// before it if the ack mode is cumulative. It reports whether ackToken
// was found, so a caller can avoid acking it twice.
func (s *Subscription) settlePending(ackToken string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for i, tok := range s.pending {
		if tok == ackToken {
			if s.ackMode == frame.AckClientIndividual {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
			} else {
				s.pending = s.pending[i+1:]
			}
			return true
		}
	}
	return false
}

// C returns the channel messages for this subscription arrive on. It is
// closed when the subscription is unsubscribed or the owning Conn is
// closed.
func (s *Subscription) C() <-chan *Message {
	return s.msgs
}

// Id is the subscription identifier sent as the "id" header on the
// SUBSCRIBE/UNSUBSCRIBE frames for this subscription, and as the
// "subscription" header on every MESSAGE delivered for it. ACK/NACK
// frames carry a different token instead: see Message.Frame's "ack"
// header, echoed verbatim as the "id" header on ack/nack per STOMP 1.2.
func (s *Subscription) Id() string {
	return s.id
}

// Destination is the destination this subscription was opened against.
func (s *Subscription) Destination() string {
	return s.destination
}

// Unsubscribe sends UNSUBSCRIBE and stops delivery. It is safe to call
// more than once.
func (s *Subscription) Unsubscribe() error {
	return s.c.unsubscribe(s)
}

// closeDelivery closes done before msgs so any dispatch goroutine
// blocked in its select{case sub.msgs<-msg: case <-sub.done:} wakes on
// done rather than racing a send against the channel close. It runs at
// most once per subscription, whether triggered by Unsubscribe or by
// the owning Conn tearing down every subscription at once.
func (s *Subscription) closeDelivery() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.msgs)
	})
}
