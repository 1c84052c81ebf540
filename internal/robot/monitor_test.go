package robot_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gsd.app/relay/internal/robot"
	"gsd.app/relay/internal/status"
)

type fakeChannel struct {
	incoming chan []byte
}

func (f *fakeChannel) Send(ctx context.Context, payload []byte) (int, error) {
	return len(payload), nil
}
func (f *fakeChannel) Incoming() <-chan []byte { return f.incoming }
func (f *fakeChannel) Address() string         { return "tcp://robot.test:9000" }
func (f *fakeChannel) Close() error            { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []status.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, ev status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) Events() []status.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Event(nil), r.events...)
}

var _ = Describe("Monitor", func() {
	var (
		ch  *fakeChannel
		pub *recordingPublisher
		mon *robot.Monitor
	)

	BeforeEach(func() {
		ch = &fakeChannel{incoming: make(chan []byte, 4)}
		pub = &recordingPublisher{}
		mon = robot.NewMonitor(ch, pub, nil)
	})

	It("publishes every inbound chunk and stops when the stream closes", func() {
		ch.incoming <- []byte("FORWARD,2")
		ch.incoming <- []byte{0xff, 0xfe}
		close(ch.incoming)

		Expect(mon.Run(context.Background())).To(Succeed())

		events := pub.Events()
		Expect(events).To(HaveLen(2))
		Expect(events[0].Source).To(Equal("robot"))
		Expect(events[0].Message).To(Equal("FORWARD,2"))
		Expect(events[0].Fields).To(HaveKeyWithValue("bytes", 9))
		Expect(events[1].Message).To(Equal("<binary>"))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- mon.Run(ctx) }()

		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})
})
