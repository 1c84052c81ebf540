// Package robot owns the point-to-point link to the warehouse robot.
package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	defaultBaudRate    = 115200
	defaultDialTimeout = 5 * time.Second
	serialReadTimeout  = 500 * time.Millisecond
	readBufferSize     = 1024
	incomingBuffer     = 64
)

var ErrChannelUnavailable = errors.New("robot channel unavailable")

// Channel is a connected robot link. Send may be called concurrently;
// bytes from one Send are never interleaved with another.
type Channel interface {
	Send(ctx context.Context, payload []byte) (int, error)

	// Incoming delivers chunks read from the robot. Closed when the link drops or Close is called.
	Incoming() <-chan []byte

	Address() string
	Close() error
}

type ChannelError struct {
	Op      string
	Address string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("robot %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

type options struct {
	baudRate    int
	dialTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*options)

func WithBaudRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.baudRate = rate
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Connect opens the link named by address:
//
//	serial:///dev/rfcomm0   serial port (Bluetooth RFCOMM or USB)
//	/dev/rfcomm0            same, scheme omitted
//	tcp://host:port         TCP socket, e.g. a simulator or serial bridge
func Connect(ctx context.Context, address string, opts ...Option) (Channel, error) {
	o := options{baudRate: defaultBaudRate, dialTimeout: defaultDialTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case address == "":
		return nil, &ChannelError{Op: "connect", Address: address, Err: errors.New("empty address")}

	case strings.HasPrefix(address, "tcp://"):
		dialer := net.Dialer{Timeout: o.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", strings.TrimPrefix(address, "tcp://"))
		if err != nil {
			return nil, &ChannelError{Op: "connect", Address: address, Err: err}
		}
		return newStreamChannel(conn, address, o.logger), nil

	default:
		device := strings.TrimPrefix(address, "serial://")
		port, err := serial.Open(device, &serial.Mode{BaudRate: o.baudRate})
		if err != nil {
			return nil, &ChannelError{Op: "connect", Address: address, Err: err}
		}
		// A read timeout lets the reader notice Close without relying on the driver.
		if err := port.SetReadTimeout(serialReadTimeout); err != nil {
			port.Close()
			return nil, &ChannelError{Op: "connect", Address: address, Err: err}
		}
		return newStreamChannel(port, address, o.logger), nil
	}
}

// streamChannel adapts any byte stream (serial port, TCP conn) to Channel.
type streamChannel struct {
	rwc      io.ReadWriteCloser
	address  string
	logger   *slog.Logger
	incoming chan []byte
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStreamChannel(rwc io.ReadWriteCloser, address string, logger *slog.Logger) *streamChannel {
	c := &streamChannel{
		rwc:      rwc,
		address:  address,
		logger:   logger,
		incoming: make(chan []byte, incomingBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *streamChannel) Address() string {
	return c.address
}

func (c *streamChannel) Incoming() <-chan []byte {
	return c.incoming
}

func (c *streamChannel) Send(ctx context.Context, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &ChannelError{Op: "send", Address: c.address, Err: err}
	}
	select {
	case <-c.done:
		return 0, &ChannelError{Op: "send", Address: c.address, Err: ErrChannelUnavailable}
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if conn, ok := c.rwc.(net.Conn); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetWriteDeadline(deadline)
			defer conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
		}
	}

	written := 0
	for written < len(payload) {
		n, err := c.rwc.Write(payload[written:])
		written += n
		if err != nil {
			return written, &ChannelError{Op: "send", Address: c.address, Err: err}
		}
		if n == 0 {
			return written, &ChannelError{Op: "send", Address: c.address, Err: io.ErrShortWrite}
		}
	}
	return written, nil
}

func (c *streamChannel) readLoop() {
	defer close(c.incoming)

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.incoming <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) {
					c.logger.Warn("robot link read failed", "address", c.address, "error", err)
				} else {
					c.logger.Warn("robot link closed by peer", "address", c.address)
				}
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *streamChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

// Disconnected stands in for a link that could not be opened so dispatch
// can keep draining the queue. Every Send fails with ErrChannelUnavailable.
type Disconnected struct {
	address  string
	cause    error
	incoming chan []byte
}

func NewDisconnected(address string, cause error) *Disconnected {
	ch := make(chan []byte)
	close(ch)
	return &Disconnected{address: address, cause: cause, incoming: ch}
}

func (d *Disconnected) Send(ctx context.Context, payload []byte) (int, error) {
	err := ErrChannelUnavailable
	if d.cause != nil {
		err = fmt.Errorf("%w: %w", ErrChannelUnavailable, d.cause)
	}
	return 0, &ChannelError{Op: "send", Address: d.address, Err: err}
}

func (d *Disconnected) Incoming() <-chan []byte { return d.incoming }
func (d *Disconnected) Address() string         { return d.address }
func (d *Disconnected) Close() error            { return nil }
