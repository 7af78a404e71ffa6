package gostomp

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/batchcorp/gostomp/frame"
)

var _ = Describe("Ack/Nack", func() {
	var (
		broker *fakeBroker
		conn   *Conn
		sess   *fakeSession
	)

	BeforeEach(func() {
		var err error
		broker, err = newFakeBroker()
		Expect(err).NotTo(HaveOccurred())

		ready := make(chan *fakeSession, 1)
		go func() {
			netConn, err := broker.accept()
			if err != nil {
				return
			}
			s := newFakeSession(netConn)
			if _, err := s.handshake("0,0"); err != nil {
				return
			}
			ready <- s
		}()

		conn, err = Dial("tcp", broker.addr())
		Expect(err).NotTo(HaveOccurred())
		Eventually(ready, time.Second).Should(Receive(&sess))
	})

	AfterEach(func() {
		conn.Close()
		broker.close()
	})

	// deliverMessage subscribes under ackMode, drains the resulting
	// SUBSCRIBE off the wire, and hands a MESSAGE carrying the given
	// "ack" token back through the session, returning the delivered
	// *Message.
	deliverMessage := func(ackMode, ackToken string) *Message {
		sub, err := conn.Subscribe("/queue/a", ackMode)
		Expect(err).NotTo(HaveOccurred())

		_, err = sess.readFrame() // SUBSCRIBE
		Expect(err).NotTo(HaveOccurred())

		msgFrame := frame.New(frame.MESSAGE,
			frame.Subscription, sub.Id(),
			frame.Destination, "/queue/a",
			frame.MessageId, "m-1",
			frame.Ack, ackToken,
		).WithBody([]byte("hi"))
		Expect(sess.writeFrame(msgFrame)).To(Succeed())

		var got *Message
		Eventually(sub.C(), time.Second).Should(Receive(&got))
		return got
	}

	It("echoes the MESSAGE's ack header as the ACK frame's id, with no subscription/message-id headers", func() {
		msg := deliverMessage(frame.AckClientIndividual, "ack-tok-1")

		Expect(conn.Ack(msg)).To(Succeed())

		ackFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(ackFrame.Command).To(Equal(frame.ACK))
		Expect(ackFrame.Header.Get(frame.Id)).To(Equal("ack-tok-1"))
		_, hasSub := ackFrame.Header.Contains(frame.Subscription)
		Expect(hasSub).To(BeFalse())
		_, hasMsgID := ackFrame.Header.Contains(frame.MessageId)
		Expect(hasMsgID).To(BeFalse())
	})

	It("echoes the MESSAGE's ack header as the NACK frame's id", func() {
		msg := deliverMessage(frame.AckClientIndividual, "ack-tok-2")

		Expect(conn.Nack(msg)).To(Succeed())

		nackFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(nackFrame.Command).To(Equal(frame.NACK))
		Expect(nackFrame.Header.Get(frame.Id)).To(Equal("ack-tok-2"))
	})

	It("sends nothing under auto ack mode", func() {
		msg := deliverMessage(frame.AckAuto, "ack-tok-3")
		Expect(conn.Ack(msg)).To(Succeed())

		sess.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, err := sess.readFrame()
		sess.conn.SetReadDeadline(time.Time{})
		Expect(err).To(HaveOccurred(), "expected no ACK frame under auto ack mode")
	})

	It("does not re-send ACK for an already-settled token", func() {
		msg := deliverMessage(frame.AckClient, "ack-tok-4")

		Expect(conn.Ack(msg)).To(Succeed())
		_, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())

		Expect(conn.Ack(msg)).To(Succeed())

		sess.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, err = sess.readFrame()
		sess.conn.SetReadDeadline(time.Time{})
		Expect(err).To(HaveOccurred(), "expected no second ACK frame for a settled token")
	})

	It("carries a transaction header when acked through a Transaction", func() {
		msg := deliverMessage(frame.AckClientIndividual, "ack-tok-5")

		tx, err := conn.Begin()
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.readFrame() // BEGIN
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.Ack(msg)).To(Succeed())

		ackFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(ackFrame.Header.Get(frame.Id)).To(Equal("ack-tok-5"))
		Expect(ackFrame.Header.Get(frame.Transaction)).To(Equal(tx.Id()))
	})
})
