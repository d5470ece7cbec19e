package discovery

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/transport"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

func hardwareInfo(t *testing.T, canID string, ip net.IP, mode types.UnitMode) []byte {
	t.Helper()
	id, err := protocol.ParseCanID(canID)
	require.NoError(t, err)
	raw, err := protocol.EncodeHardwareInfo(&protocol.HardwareInfo{
		CanID:        id,
		UnitType:     types.UnitType(0x0201),
		SerialNumber: "AC-" + canID,
		Mode:         mode,
		RecoveryMode: true,
		IPAddress:    ip,
		Firmware:     "2.4",
	})
	require.NoError(t, err)
	return raw
}

func response(iface, source string, data []byte) transport.ScanResponse {
	return transport.ScanResponse{
		Interface: iface,
		Source:    &net.UDPAddr{IP: net.ParseIP(source), Port: 5000},
		Data:      data,
	}
}

func TestDecode(t *testing.T) {
	garbage := make([]byte, 12)
	binary.LittleEndian.PutUint16(garbage[4:6], 200)

	responses := []transport.ScanResponse{
		response("eth1", "192.168.1.30", hardwareInfo(t, "1.1.1.2", net.IPv4(10, 0, 0, 9), types.ModeSlave)),
		response("eth0", "192.168.1.7", hardwareInfo(t, "1.1.1.1", net.IPv4(192, 168, 1, 7), types.ModeMaster)),
		response("eth2", "192.168.1.30", hardwareInfo(t, "1.1.1.2", net.IPv4(10, 0, 0, 9), types.ModeSlave)),
		response("eth0", "192.168.1.99", garbage),
	}

	units := Decode(responses, zap.NewNop())
	require.Len(t, units, 2)

	assert.Equal(t, "192.168.1.7", units[0].IPAddress)
	assert.Equal(t, "1.1.1.1", units[0].CanID)
	assert.Equal(t, types.ModeMaster, units[0].Mode)
	assert.Equal(t, "eth0", units[0].Interface)

	// source address wins over the configured one
	assert.Equal(t, "192.168.1.30", units[1].IPAddress)
	assert.Equal(t, "eth1", units[1].Interface)
	assert.Equal(t, "AC-1.1.1.2", units[1].SerialNumber)
	assert.Equal(t, "AC-Gateway", units[1].UnitType.String())
	assert.True(t, units[1].RecoveryMode)
	assert.Equal(t, "2.4", units[1].Firmware)
}

func TestDecodeSortsNumerically(t *testing.T) {
	responses := []transport.ScanResponse{
		response("eth0", "192.168.1.100", hardwareInfo(t, "1.1.1.3", nil, types.ModeSlave)),
		response("eth0", "192.168.1.20", hardwareInfo(t, "1.1.1.2", nil, types.ModeSlave)),
		response("eth0", "192.168.1.3", hardwareInfo(t, "1.1.1.1", nil, types.ModeSlave)),
	}

	units := Decode(responses, zap.NewNop())
	require.Len(t, units, 3)
	assert.Equal(t, "192.168.1.3", units[0].IPAddress)
	assert.Equal(t, "192.168.1.20", units[1].IPAddress)
	assert.Equal(t, "192.168.1.100", units[2].IPAddress)
}

func TestScannerOverride(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	reply := hardwareInfo(t, "2.0.0.1", net.IPv4(127, 0, 0, 1), types.ModeStandAlone)
	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if protocol.AcceptDiscoveryResponse(buf[:n]) {
				continue
			}
			// reply twice, the scanner must report the unit once
			conn.WriteToUDP(reply, from)
			conn.WriteToUDP(reply, from)
		}
	}()

	scanner := NewScanner(Options{
		Port:       conn.LocalAddr().(*net.UDPAddr).Port,
		Timeout:    200 * time.Millisecond,
		Broadcasts: []string{"lo=127.0.0.1"},
	}, zap.NewNop())

	units := scanner.Scan(context.Background())
	require.Len(t, units, 1)
	assert.Equal(t, "127.0.0.1", units[0].IPAddress)
	assert.Equal(t, "2.0.0.1", units[0].CanID)
	assert.Equal(t, "lo", units[0].Interface)
}

func TestScannerWithoutInterfaces(t *testing.T) {
	scanner := NewScanner(Options{Timeout: 50 * time.Millisecond}, zap.NewNop())
	scanner.targets = func() ([]transport.ScanTarget, error) { return nil, nil }

	assert.Empty(t, scanner.Scan(context.Background()))
}
