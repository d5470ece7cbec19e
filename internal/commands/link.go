package commands

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/executor"
	"github.com/KevinKickass/OpenUnitSync/internal/transport"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// Dialer opens command links to units on a fixed UDP port.
type Dialer struct {
	port    int
	timeout time.Duration
	logger  *zap.Logger
}

func NewDialer(port int, timeout time.Duration, logger *zap.Logger) *Dialer {
	return &Dialer{
		port:    port,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Dialer) Dial(ctx context.Context, unit types.NetworkUnit) (executor.Link, error) {
	target, err := protocol.ParseCanID(unit.CanID)
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(unit.IPAddress, strconv.Itoa(d.port))
	client := transport.NewClient(address, d.timeout, d.logger)
	if err := client.Connect(); err != nil {
		return nil, err
	}

	return &Link{
		client: client,
		target: target,
		port:   d.port,
		label:  unit.Label(),
		logger: d.logger,
	}, nil
}

// Link sends configuration commands to one unit.
type Link struct {
	client *transport.Client
	target protocol.CanID
	port   int
	label  string
	logger *zap.Logger
}

func (l *Link) request(ctx context.Context, cmd protocol.Command, data []byte) error {
	if _, err := l.client.Request(ctx, cmd.Frame(l.target, data)); err != nil {
		return fmt.Errorf("command 0x%02X/0x%02X to %s: %w", cmd.Code, cmd.Sub, l.label, err)
	}
	return nil
}

func (l *Link) requestCBOR(ctx context.Context, cmd protocol.Command, v any) error {
	data, err := protocol.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return l.request(ctx, cmd, data)
}

func (l *Link) SetHardwareMode(ctx context.Context, mode types.UnitMode) error {
	return l.request(ctx, setHardwareMode, []byte{byte(mode)})
}

func (l *Link) SetIOBatch(ctx context.Context, group types.IOGroup, batch []types.IOConfig) error {
	cmd, ok := ioCommands[group]
	if !ok {
		return fmt.Errorf("unknown I/O group %s", group)
	}
	return l.requestCBOR(ctx, cmd, batch)
}

func (l *Link) SetRS485Channel(ctx context.Context, index int, cfg types.RS485Channel) error {
	cfg.Index = index
	return l.requestCBOR(ctx, setRS485Channel, cfg)
}

// ChangeIP moves the unit to ip. Later commands of this link go to the new
// address.
func (l *Link) ChangeIP(ctx context.Context, ip string) error {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return fmt.Errorf("invalid IPv4 address %q", ip)
	}

	if err := l.request(ctx, changeIP, parsed); err != nil {
		return err
	}

	return l.client.Retarget(net.JoinHostPort(ip, strconv.Itoa(l.port)))
}

// ChangeCanID moves the unit to canID. Later commands of this link address
// the new id.
func (l *Link) ChangeCanID(ctx context.Context, canID string) error {
	id, err := protocol.ParseCanID(canID)
	if err != nil {
		return err
	}

	if err := l.request(ctx, changeCanID, id[:]); err != nil {
		return err
	}

	l.target = id
	return nil
}

func (l *Link) DeleteCategory(ctx context.Context, c types.ConfigCategory) error {
	return l.request(ctx, commandsFor(c).delete, nil)
}

func (l *Link) SendCategory(ctx context.Context, c types.ConfigCategory, record protocol.WireRecord) error {
	return l.requestCBOR(ctx, commandsFor(c).send, record)
}

func (l *Link) Close() error {
	return l.client.Close()
}
