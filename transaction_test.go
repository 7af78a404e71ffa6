package gostomp

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/batchcorp/gostomp/frame"
)

var _ = Describe("Transaction", func() {
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

	It("brackets SEND/COMMIT with a BEGIN carrying the same transaction id", func() {
		tx, err := conn.Begin()
		Expect(err).NotTo(HaveOccurred())

		beginFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(beginFrame.Command).To(Equal(frame.BEGIN))
		txID := beginFrame.Header.Get(frame.Transaction)
		Expect(txID).To(Equal(tx.Id()))

		Expect(tx.Send("/queue/a", "text/plain", []byte("hi"))).To(Succeed())
		sendFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(sendFrame.Header.Get(frame.Transaction)).To(Equal(txID))

		Expect(tx.Commit()).To(Succeed())
		commitFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(commitFrame.Command).To(Equal(frame.COMMIT))
		Expect(commitFrame.Header.Get(frame.Transaction)).To(Equal(txID))
	})

	It("sends ABORT instead of COMMIT when aborted", func() {
		tx, err := conn.Begin()
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.readFrame() // BEGIN
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.Abort()).To(Succeed())
		abortFrame, err := sess.readFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(abortFrame.Command).To(Equal(frame.ABORT))
	})

	It("is idempotent: a second Commit or Abort is a silent no-op", func() {
		tx, err := conn.Begin()
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.readFrame() // BEGIN
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.Commit()).To(Succeed())
		_, err = sess.readFrame() // COMMIT
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.Commit()).To(Succeed())
		Expect(tx.Abort()).To(Succeed())
	})
})
