package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// statusReply echoes command and sub-command with the given status.
func statusReply(status uint8) func(req []byte) [][]byte {
	return func(req []byte) [][]byte {
		frame, err := protocol.DecodeFrame(req)
		if err != nil {
			return nil
		}
		raw, _ := (&protocol.Frame{
			Target:     frame.Target,
			Command:    frame.Command,
			SubCommand: frame.SubCommand,
			Data:       []byte{status},
		}).Encode()
		return [][]byte{raw}
	}
}

func connectedClient(t *testing.T, u *fakeUnit, timeout time.Duration) *Client {
	t.Helper()
	c := NewClient(u.addr().String(), timeout, zap.NewNop())
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRequest(t *testing.T) {
	unit := newFakeUnit(t, statusReply(protocol.StatusOK))
	c := connectedClient(t, unit, time.Second)

	req := &protocol.Frame{Command: protocol.CmdScene, SubCommand: protocol.SubCategoryDelete}
	resp, err := c.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdScene, resp.Command)
	assert.Equal(t, protocol.SubCategoryDelete, resp.SubCommand)
	assert.Len(t, unit.requests(), 1)
}

func TestClientRequestRejected(t *testing.T) {
	unit := newFakeUnit(t, statusReply(protocol.StatusBusy))
	c := connectedClient(t, unit, time.Second)

	_, err := c.Request(context.Background(), &protocol.Frame{Command: protocol.CmdIO, SubCommand: protocol.SubIOInputs})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnitRejected))
	assert.Contains(t, err.Error(), "busy")
}

func TestClientSkipsStaleReplies(t *testing.T) {
	ok := statusReply(protocol.StatusOK)
	unit := newFakeUnit(t, func(req []byte) [][]byte {
		stale, _ := (&protocol.Frame{Command: 0x7F, SubCommand: 0x01, Data: []byte{0}}).Encode()
		return append([][]byte{stale}, ok(req)...)
	})
	c := connectedClient(t, unit, time.Second)

	resp, err := c.Exchange(context.Background(), &protocol.Frame{Command: protocol.CmdNetwork, SubCommand: protocol.SubChangeIP})
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdNetwork, resp.Command)
}

func TestClientTimeout(t *testing.T) {
	unit := newFakeUnit(t, func([]byte) [][]byte { return nil })
	c := connectedClient(t, unit, 100*time.Millisecond)

	_, err := c.Exchange(context.Background(), &protocol.Frame{Command: protocol.CmdHardware, SubCommand: protocol.SubSetHardwareMode})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTimeout))
	assert.True(t, types.IsTransport(err))
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient("127.0.0.1:5000", time.Second, zap.NewNop())
	_, err := c.Exchange(context.Background(), &protocol.Frame{})
	assert.True(t, errors.Is(err, types.ErrNotConnected))
}

func TestClientRetarget(t *testing.T) {
	silent := newFakeUnit(t, func([]byte) [][]byte { return nil })
	answering := newFakeUnit(t, statusReply(protocol.StatusOK))

	c := connectedClient(t, silent, 200*time.Millisecond)
	require.NoError(t, c.Retarget(fmt.Sprintf("127.0.0.1:%d", answering.addr().Port)))
	assert.Equal(t, answering.addr().String(), c.Address())

	_, err := c.Request(context.Background(), &protocol.Frame{Command: protocol.CmdNetwork, SubCommand: protocol.SubChangeCanID})
	require.NoError(t, err)
	assert.Empty(t, silent.requests())
}
