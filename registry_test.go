package gostomp

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/batchcorp/gostomp/frame"
)

var _ = Describe("registry", func() {
	It("allocates distinct monotonic subscription ids", func() {
		r := newRegistry()
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			id := r.allocSubID()
			Expect(seen[id]).To(BeFalse(), "id %q was allocated twice", id)
			seen[id] = true
		}
	})

	It("replays every open subscription and forgets closed ones", func() {
		r := newRegistry()
		a := &Subscription{id: "1", destination: "/queue/a"}
		b := &Subscription{id: "2", destination: "/queue/b"}
		r.addSubscription(a)
		r.addSubscription(b)

		Expect(r.snapshotSubscriptions()).To(ConsistOf(a, b))

		r.removeSubscription("1")
		Expect(r.snapshotSubscriptions()).To(ConsistOf(b))

		_, ok := r.subscription("1")
		Expect(ok).To(BeFalse())
	})

	It("returns snapshotSubscriptions in insertion order, not map order", func() {
		r := newRegistry()
		subs := make([]*Subscription, 5)
		for i := range subs {
			subs[i] = &Subscription{id: r.allocSubID()}
			r.addSubscription(subs[i])
		}

		// Run the snapshot many times: with plain map iteration this
		// would eventually surface a different order at least once.
		for i := 0; i < 20; i++ {
			Expect(r.snapshotSubscriptions()).To(Equal(subs))
		}

		// Removing a subscription from the middle must not disturb the
		// relative order of the ones that remain.
		r.removeSubscription(subs[2].id)
		want := []*Subscription{subs[0], subs[1], subs[3], subs[4]}
		Expect(r.snapshotSubscriptions()).To(Equal(want))
	})

	It("resolves a registered receipt waiter exactly once", func() {
		r := newRegistry()
		id, ch := r.newReceiptWaiter()

		reply := frame.New(frame.RECEIPT, frame.ReceiptId, id)
		Expect(r.resolveReceipt(id, reply)).To(BeTrue())
		Expect(<-ch).To(Equal(reply))

		// A second resolution for the same id finds nothing: it was
		// removed from the registry on first delivery.
		Expect(r.resolveReceipt(id, reply)).To(BeFalse())
	})

	It("drops a RECEIPT with no matching waiter", func() {
		r := newRegistry()
		Expect(r.resolveReceipt("unknown", frame.New(frame.RECEIPT))).To(BeFalse())
	})

	It("fails every outstanding receipt waiter on failAllReceipts", func() {
		r := newRegistry()
		_, ch1 := r.newReceiptWaiter()
		_, ch2 := r.newReceiptWaiter()

		r.failAllReceipts()

		_, ok1 := <-ch1
		_, ok2 := <-ch2
		Expect(ok1).To(BeFalse())
		Expect(ok2).To(BeFalse())
	})

	It("closes every subscription's delivery channel on closeAllSubscriptions", func() {
		r := newRegistry()
		sub := &Subscription{id: "1", msgs: make(chan *Message, 1), done: make(chan struct{})}
		r.addSubscription(sub)

		r.closeAllSubscriptions()

		_, ok := <-sub.msgs
		Expect(ok).To(BeFalse())
		Expect(r.snapshotSubscriptions()).To(BeEmpty())
	})
})
