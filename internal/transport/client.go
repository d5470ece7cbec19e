package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// maxDatagram is the receive buffer for a single reply.
const maxDatagram = 2048

// Client is the request/response channel to a single unit. Only one request
// is in flight at a time; the unit has no way to correlate concurrent
// replies.
type Client struct {
	address   string
	target    *net.UDPAddr
	conn      *net.UDPConn
	mu        sync.Mutex
	timeout   time.Duration
	connected bool
	logger    *zap.Logger
}

func NewClient(address string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		address: address,
		timeout: timeout,
		logger:  logger,
	}
}

// Address returns the current host:port of the unit.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Connect opens the local UDP socket.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	target, err := net.ResolveUDPAddr("udp4", c.address)
	if err != nil {
		return &types.TransportError{Op: "resolve", Addr: c.address, Err: err}
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return &types.TransportError{Op: "listen", Addr: c.address, Err: err}
	}

	c.target = target
	c.conn = conn
	c.connected = true

	return nil
}

// Close closes the socket. Closing twice is harmless.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// Retarget points the client at a new address, e.g. after the unit's IP
// was changed. The socket stays open.
func (c *Client) Retarget(address string) error {
	target, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return &types.TransportError{Op: "resolve", Addr: address, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("Retargeting unit client",
		zap.String("from", c.address),
		zap.String("to", address))

	c.address = address
	c.target = target
	return nil
}

// Exchange sends a frame and waits for the matching reply.
// Replies from other hosts and replies to other commands are discarded.
func (c *Client) Exchange(ctx context.Context, request *protocol.Frame) (*protocol.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, &types.TransportError{Op: "exchange", Addr: c.address, Err: types.ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return nil, &types.TransportError{Op: "exchange", Addr: c.address, Err: err}
	}

	requestData, err := request.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.WriteToUDP(requestData, c.target); err != nil {
		return nil, &types.TransportError{Op: "write", Addr: c.address, Err: err}
	}

	buf := make([]byte, maxDatagram)
	for {
		c.conn.SetReadDeadline(deadline)

		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, &types.TransportError{Op: "read", Addr: c.address, Err: types.ErrTimeout}
			}
			return nil, &types.TransportError{Op: "read", Addr: c.address, Err: err}
		}

		if !from.IP.Equal(c.target.IP) {
			c.logger.Debug("Discarding datagram from foreign host",
				zap.String("unit", c.address),
				zap.String("from", from.String()))
			continue
		}

		response, err := protocol.DecodeFrame(buf[:n])
		if err != nil {
			return nil, &types.TransportError{Op: "decode", Addr: c.address, Err: err}
		}

		// late reply to an earlier request
		if !protocol.CommandOf(request).Matches(response) {
			c.logger.Debug("Discarding stale reply",
				zap.String("unit", c.address),
				zap.Uint8("command", response.Command),
				zap.Uint8("sub_command", response.SubCommand))
			continue
		}

		return response, nil
	}
}

// Request performs an exchange and checks the status byte of the reply.
func (c *Client) Request(ctx context.Context, request *protocol.Frame) (*protocol.Frame, error) {
	response, err := c.Exchange(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(response.Data) == 0 {
		return nil, &types.TransportError{
			Op:   "decode",
			Addr: c.Address(),
			Err:  types.NewProtocolError("reply without status byte"),
		}
	}

	if status := response.Data[0]; status != protocol.StatusOK {
		return nil, fmt.Errorf("%w: status %d (%s)", types.ErrUnitRejected, status, protocol.StatusText(status))
	}

	return response, nil
}
