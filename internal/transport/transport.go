// Package transport moves opaque binary envelopes between nodes over UDP.
//
// One datagram carries one envelope. Delivery is best effort: the caller
// decides whether to retry, the transport only reports ErrTimeout.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// MaxDatagram is the largest payload that fits one UDP datagram.
const MaxDatagram = 65507

// DefaultRequestTimeout bounds Request when ctx has no deadline.
const DefaultRequestTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when a peer does not answer in time.
	ErrTimeout = errors.New("transport: timeout")

	// ErrTooLarge is returned for payloads above MaxDatagram.
	ErrTooLarge = errors.New("transport: payload exceeds datagram size")

	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("transport: connection closed")
)

// Handler processes one inbound datagram. A non-nil reply is sent back to
// the sender.
type Handler func(ctx context.Context, from net.Addr, payload []byte) []byte

// Conn is a UDP endpoint that serves inbound datagrams and sends outbound
// ones from the same port, so peers see a stable source address.
type Conn struct {
	pc     *net.UDPConn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Listen binds a UDP socket on addr ("host:port"; port 0 picks a free one).
func Listen(addr string, logger *slog.Logger) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{pc: pc, logger: logger}, nil
}

// Addr returns the bound local address.
func (c *Conn) Addr() net.Addr {
	return c.pc.LocalAddr()
}

// Serve reads datagrams and hands each to h in arrival order until ctx is
// done or the Conn is closed. Returns nil after a clean shutdown.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.logger.Info("transport listening", "addr", c.Addr().String())

	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := c.pc.ReadFromUDP(buf)
		if err != nil {
			if c.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("read datagram: %w", err)
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		reply := h(ctx, from, payload)
		if reply == nil {
			continue
		}
		if len(reply) > MaxDatagram {
			c.logger.Warn("reply dropped", "to", from.String(), "size", len(reply), "error", ErrTooLarge)
			continue
		}
		if _, err := c.pc.WriteToUDP(reply, from); err != nil {
			c.logger.Warn("reply failed", "to", from.String(), "error", err)
		}
	}
}

// Send writes payload to addr without waiting for an answer.
func (c *Conn) Send(ctx context.Context, addr string, payload []byte) error {
	if len(payload) > MaxDatagram {
		return ErrTooLarge
	}
	if c.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	if _, err := c.pc.WriteToUDP(payload, to); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

// Close releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.pc.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Request sends payload to addr from an ephemeral port and waits for one
// reply datagram. The wait is bounded by ctx, or DefaultRequestTimeout when
// ctx has no deadline; expiry returns an error matching ErrTimeout.
func Request(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	if len(payload) > MaxDatagram {
		return nil, ErrTooLarge
	}
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, to)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultRequestTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("send to %s: %w", addr, err)
	}

	buf := make([]byte, MaxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: no reply from %s", ErrTimeout, addr)
		}
		return nil, fmt.Errorf("read reply from %s: %w", addr, err)
	}
	return buf[:n], nil
}
