package gostomp

import "github.com/batchcorp/gostomp/frame"

// Transaction groups SEND, ACK, and NACK frames under a single
// BEGIN/COMMIT or BEGIN/ABORT bracket, per STOMP's transaction commands.
// It does not survive a reconnect: a transaction open when the session
// drops is considered aborted by the broker, and this library does not
// attempt to resurrect it.
type Transaction struct {
	id   string
	c    *Conn
	done bool
}

// Id is the transaction identifier sent as the "transaction" header on
// every frame issued through this Transaction.
func (t *Transaction) Id() string {
	return t.id
}

// Send issues a SEND frame scoped to this transaction.
func (t *Transaction) Send(destination, contentType string, body []byte, headers ...string) error {
	f := frame.New(frame.SEND, headers...).
		WithHeader(frame.Destination, destination).
		WithHeader(frame.Transaction, t.id).
		WithBody(body)
	if contentType != "" {
		f.WithHeader(frame.ContentType, contentType)
	}
	return t.c.sendFrame(f)
}

// Ack acknowledges msg within this transaction.
func (t *Transaction) Ack(msg *Message) error {
	return t.c.ackFrame(msg, frame.ACK, t.id)
}

// Nack negatively acknowledges msg within this transaction.
func (t *Transaction) Nack(msg *Message) error {
	return t.c.ackFrame(msg, frame.NACK, t.id)
}

// Commit sends COMMIT, ending the transaction successfully.
func (t *Transaction) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.c.sendFrame(frame.New(frame.COMMIT).WithHeader(frame.Transaction, t.id))
}

// Abort sends ABORT, discarding everything sent within the transaction.
func (t *Transaction) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.c.sendFrame(frame.New(frame.ABORT).WithHeader(frame.Transaction, t.id))
}
