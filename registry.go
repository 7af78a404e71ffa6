package gostomp

import (
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/batchcorp/gostomp/frame"
)

// registry tracks everything that must survive a single socket but
// outlive a reconnect: open subscriptions (replayed as fresh SUBSCRIBE
// frames against the new session) and outstanding receipt waiters
// (failed outright, since a receipt promised by a dead session can
// never arrive).
//
// Subscription ids are a monotonic counter, never a UUID: the wire
// protocol treats "id" as an opaque token but keeping it short and
// predictable matches what most brokers log and makes wire traces easy
// to read. Receipt ids use a UUID precisely because many receipts may
// be outstanding concurrently and they must never collide.
type registry struct {
	mu sync.Mutex

	nextSubID uint64
	subs      map[string]*Subscription
	// subOrder records subscription ids in insertion order. spec.md
	// §4.4 requires subscriptions to be replayed on reconnect "in
	// insertion order", which the subs map alone cannot provide since
	// Go map iteration order is unspecified.
	subOrder []string

	receipts map[string]chan *frame.Frame
}

func newRegistry() *registry {
	return &registry{
		subs:     make(map[string]*Subscription),
		receipts: make(map[string]chan *frame.Frame),
	}
}

func (r *registry) allocSubID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSubID++
	return strconv.FormatUint(r.nextSubID, 10)
}

func (r *registry) addSubscription(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.id] = sub
	r.subOrder = append(r.subOrder, sub.id)
}

func (r *registry) removeSubscription(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	for i, existing := range r.subOrder {
		if existing == id {
			r.subOrder = append(r.subOrder[:i], r.subOrder[i+1:]...)
			break
		}
	}
}

func (r *registry) subscription(id string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// snapshotSubscriptions returns every currently open subscription in the
// order it was subscribed, for replay as SUBSCRIBE frames against a
// freshly established session.
func (r *registry) snapshotSubscriptions() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.subOrder))
	for _, id := range r.subOrder {
		out = append(out, r.subs[id])
	}
	return out
}

// closeAllSubscriptions closes every subscription's delivery channel and
// forgets them. Called when the Conn itself is closed.
func (r *registry) closeAllSubscriptions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.subOrder {
		r.subs[id].closeDelivery()
	}
	r.subs = make(map[string]*Subscription)
	r.subOrder = nil
}

// newReceiptWaiter allocates a fresh receipt id and the channel its
// resolution will be delivered on.
func (r *registry) newReceiptWaiter() (string, chan *frame.Frame) {
	id := uuid.New().String()
	ch := make(chan *frame.Frame, 1)
	r.mu.Lock()
	r.receipts[id] = ch
	r.mu.Unlock()
	return id, ch
}

func (r *registry) forgetReceiptWaiter(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.receipts, id)
}

// resolveReceipt delivers a RECEIPT frame to its waiter, if one is still
// registered. It reports whether a waiter was found.
func (r *registry) resolveReceipt(id string, f *frame.Frame) bool {
	r.mu.Lock()
	ch, ok := r.receipts[id]
	if ok {
		delete(r.receipts, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- f
	return true
}

// failAllReceipts closes every outstanding receipt channel so waiters
// still blocked in a select get woken with a zero value instead of
// hanging forever across a session loss. Callers distinguish "closed
// without delivery" from "delivered" by checking the received value.
func (r *registry) failAllReceipts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.receipts {
		close(ch)
		delete(r.receipts, id)
	}
}
