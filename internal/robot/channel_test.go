package robot_test

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gsd.app/relay/internal/robot"
)

var _ = Describe("Connect", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("over TCP", func() {
		var (
			listener net.Listener
			accepted chan net.Conn
		)

		BeforeEach(func() {
			var err error
			listener, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(listener.Close)

			accepted = make(chan net.Conn, 1)
			go func() {
				conn, err := listener.Accept()
				if err == nil {
					accepted <- conn
				}
			}()
		})

		It("sends bytes verbatim and delivers inbound data", func() {
			ch, err := robot.Connect(ctx, "tcp://"+listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer ch.Close()

			var peer net.Conn
			Eventually(accepted).Should(Receive(&peer))
			defer peer.Close()

			n, err := ch.Send(ctx, []byte("INSTRUCTIONS:FORWARD,2;TURN,1,LEFT"))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(34))

			buf := make([]byte, 34)
			Expect(peer.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			_, err = io.ReadFull(peer, buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(buf)).To(Equal("INSTRUCTIONS:FORWARD,2;TURN,1,LEFT"))

			_, err = peer.Write([]byte("FORWARD,2"))
			Expect(err).NotTo(HaveOccurred())
			Eventually(ch.Incoming()).Should(Receive(Equal([]byte("FORWARD,2"))))
		})

		It("closes the inbound stream when the peer hangs up", func() {
			ch, err := robot.Connect(ctx, "tcp://"+listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer ch.Close()

			var peer net.Conn
			Eventually(accepted).Should(Receive(&peer))
			Expect(peer.Close()).To(Succeed())

			Eventually(ch.Incoming()).Should(BeClosed())
		})

		It("rejects Send after Close", func() {
			ch, err := robot.Connect(ctx, "tcp://"+listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			Expect(ch.Close()).To(Succeed())
			Expect(ch.Close()).To(Succeed())

			_, err = ch.Send(ctx, []byte("x"))
			Expect(err).To(MatchError(robot.ErrChannelUnavailable))
			Eventually(ch.Incoming()).Should(BeClosed())
		})
	})

	It("wraps dial failures in ChannelError", func() {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := l.Addr().String()
		Expect(l.Close()).To(Succeed())

		_, err = robot.Connect(ctx, "tcp://"+addr, robot.WithDialTimeout(time.Second))
		var chErr *robot.ChannelError
		Expect(errors.As(err, &chErr)).To(BeTrue())
		Expect(chErr.Op).To(Equal("connect"))
		Expect(chErr.Address).To(Equal("tcp://" + addr))
	})

	It("wraps serial open failures in ChannelError", func() {
		_, err := robot.Connect(ctx, "serial:///dev/does-not-exist-rfcomm9", robot.WithBaudRate(9600))
		var chErr *robot.ChannelError
		Expect(errors.As(err, &chErr)).To(BeTrue())
		Expect(chErr.Op).To(Equal("connect"))
	})

	It("rejects an empty address", func() {
		_, err := robot.Connect(ctx, "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Disconnected", func() {
	It("fails every send and has no inbound data", func() {
		cause := errors.New("no such device")
		d := robot.NewDisconnected("/dev/rfcomm0", cause)

		n, err := d.Send(context.Background(), []byte("INSTRUCTIONS:"))
		Expect(n).To(BeZero())
		Expect(err).To(MatchError(robot.ErrChannelUnavailable))
		Expect(errors.Is(err, cause)).To(BeTrue())

		Eventually(d.Incoming()).Should(BeClosed())
		Expect(d.Address()).To(Equal("/dev/rfcomm0"))
		Expect(d.Close()).To(Succeed())
	})
})
